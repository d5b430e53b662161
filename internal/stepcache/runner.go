package stepcache

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/deploy"
)

// Executor runs a step's script and reports what it produced and the
// transactions it sent.
type Executor interface {
	Run(ctx context.Context, cfg RunConfig) (deploy.ChainArtifacts, []Txn, error)
}

// Signer sends a transaction on behalf of one account.
type Signer interface {
	SendTransaction(ctx context.Context, txn Txn) error
}

// SignerSource returns the signer for an address.
type SignerSource interface {
	Signer(ctx context.Context, from string) (Signer, error)
}

// Runner executes script steps through the cache in PackageDir.
type Runner struct {
	PackageDir string

	// BaseDir is the project the step scripts live in. Without it a
	// step can only be replayed from cache.
	BaseDir string

	// Context is what step templates are rendered against. A nil
	// Context leaves configs as written.
	Context BuildContext

	Executor Executor
	Signers  SignerSource
}

// State is what a step's consistency check compares between builds:
// the interpolated config and the hashes of the files it watches.
type State struct {
	AuxHashes []string  `json:"auxHashes"`
	Config    RunConfig `json:"config"`
}

// State interpolates cfg and hashes its modified paths under BaseDir.
// ok is false when there is no BaseDir, in which case the step is not
// checked for consistency.
func (r *Runner) State(cfg RunConfig) (state State, ok bool, err error) {
	if r.BaseDir == "" {
		return State{}, false, nil
	}
	cfg, err = r.interpolate(cfg)
	if err != nil {
		return State{}, false, err
	}
	hashes, err := ModifiedHashes(r.BaseDir, cfg)
	if err != nil {
		return State{}, false, err
	}
	return State{AuxHashes: hashes, Config: cfg}, true, nil
}

func (r *Runner) interpolate(cfg RunConfig) (RunConfig, error) {
	if r.Context == nil {
		return cfg, nil
	}
	out, err := Interpolate(cfg, r.Context)
	if err != nil {
		return RunConfig{}, fmt.Errorf("interpolating step %s: %w", cfg.Exec, err)
	}
	return out, nil
}

// Exec returns the output of the step described by cfg, rendered
// against Context and keyed by the hash of the result. A cached record
// is replayed by resending its transactions; otherwise the step runs
// and its result is cached.
func (r *Runner) Exec(ctx context.Context, cfg RunConfig) (*deploy.ChainArtifacts, error) {
	cfg, err := r.interpolate(cfg)
	if err != nil {
		return nil, err
	}
	stateHash, err := StateHash(cfg)
	if err != nil {
		return nil, err
	}
	logger := log.G(ctx).WithField("exec", cfg.Exec).WithField("stateHash", stateHash)

	rec, ok, err := Get(r.PackageDir, stateHash)
	if err != nil {
		return nil, err
	}
	if ok {
		logger.WithField("txns", len(rec.Txns)).Debug("replaying cached step")
		if err := r.replay(ctx, rec.Txns); err != nil {
			return nil, err
		}
		return &rec.Output, nil
	}

	if r.BaseDir == "" {
		return nil, fmt.Errorf("run steps cannot be executed outside of their original project directory: %w", errdefs.ErrFailedPrecondition)
	}
	if r.Executor == nil {
		return nil, fmt.Errorf("no step executor configured: %w", errdefs.ErrNotImplemented)
	}

	output, txns, err := r.Executor.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("running %s.%s: %w", cfg.Exec, cfg.Func, err)
	}
	logger.WithField("txns", len(txns)).Debug("caching step")
	if err := Put(r.PackageDir, stateHash, Record{Txns: txns, Output: output}); err != nil {
		return nil, err
	}
	return &output, nil
}

func (r *Runner) replay(ctx context.Context, txns []Txn) error {
	if len(txns) > 0 && r.Signers == nil {
		return fmt.Errorf("cached step has %d transactions but no signers are configured: %w", len(txns), errdefs.ErrFailedPrecondition)
	}
	for i, txn := range txns {
		if err := ctx.Err(); err != nil {
			return err
		}
		signer, err := r.Signers.Signer(ctx, txn.From)
		if err != nil {
			return fmt.Errorf("signer for %s: %w", txn.From, err)
		}
		if err := signer.SendTransaction(ctx, txn); err != nil {
			return fmt.Errorf("replaying transaction %d: %w", i, err)
		}
	}
	return nil
}
