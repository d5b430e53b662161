package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// AlterCommand names an edit applied to a stored record.
type AlterCommand string

const (
	AlterSetURL             AlterCommand = "set-url"
	AlterSetContractAddress AlterCommand = "set-contract-address"
	AlterMarkComplete       AlterCommand = "mark-complete"
	AlterMarkIncomplete     AlterCommand = "mark-incomplete"
)

// AlterCommands lists the supported commands in help order.
var AlterCommands = []AlterCommand{AlterSetURL, AlterSetContractAddress, AlterMarkComplete, AlterMarkIncomplete}

// AlterOptions configures Alter.
type AlterOptions struct {
	PackageRef string
	ChainID    int64
	Command    AlterCommand
	Args       []string
	Storage    *storage.Storage
}

// AlterResult holds the outcome of an alteration.
type AlterResult struct {
	// Previous is the registry entry before the edit.
	Previous Resolution

	// URL is where the edited record was written.
	URL       string
	Published []string
	Info      *deploy.Info
}

// Alter edits the record registered for a package without rebuilding
// it, writes the edited record and points the same name at it. The
// metadata URL is kept.
func Alter(ctx context.Context, opts AlterOptions) (*AlterResult, error) {
	res, err := Resolve(ctx, opts.PackageRef, opts.ChainID, opts.Storage)
	if err != nil {
		return nil, err
	}
	wrap := func(err error) error {
		return &Error{Op: "alter", Ref: res.Ref, ChainID: opts.ChainID, Err: err}
	}

	info, err := opts.Storage.ReadDeployment(ctx, res.URL)
	if err != nil {
		return nil, wrap(err)
	}
	if err := applyAlter(info, opts.Command, opts.Args); err != nil {
		return nil, wrap(err)
	}
	if err := info.Validate(); err != nil {
		return nil, wrap(err)
	}

	url, err := opts.Storage.PutBlob(ctx, info)
	if err != nil {
		return nil, wrap(fmt.Errorf("writing deployment: %w", err))
	}
	if url == "" {
		return nil, wrap(fmt.Errorf("uploaded url is invalid: %w", errdefs.ErrDataLoss))
	}

	published, err := opts.Storage.Registry().Publish(ctx, []string{res.Ref}, opts.ChainID, url, res.MetaURL)
	if err != nil {
		return nil, wrap(err)
	}
	log.G(ctx).WithFields(log.Fields{
		"package": res.Ref,
		"command": opts.Command,
		"from":    res.URL,
		"to":      url,
	}).Info("altered deployment")
	return &AlterResult{Previous: *res, URL: url, Published: published, Info: info}, nil
}

func applyAlter(info *deploy.Info, cmd AlterCommand, args []string) error {
	want := map[AlterCommand]int{
		AlterSetURL:             1,
		AlterSetContractAddress: 2,
		AlterMarkComplete:       0,
		AlterMarkIncomplete:     0,
	}
	n, ok := want[cmd]
	if !ok {
		return fmt.Errorf("unknown alter command %q: %w", cmd, errdefs.ErrInvalidArgument)
	}
	if len(args) != n {
		return fmt.Errorf("%s takes %d argument(s), got %d: %w", cmd, n, len(args), errdefs.ErrInvalidArgument)
	}

	switch cmd {
	case AlterSetURL:
		if !strings.Contains(args[0], "://") {
			return fmt.Errorf("misc url %q has no scheme: %w", args[0], errdefs.ErrInvalidArgument)
		}
		info.MiscURL = args[0]
	case AlterSetContractAddress:
		return setContractAddress(info, args[0], args[1])
	case AlterMarkComplete:
		info.Status = deploy.StatusComplete
	case AlterMarkIncomplete:
		info.Status = deploy.StatusPartial
	}
	return nil
}

// setContractAddress rewrites the address of every step output that
// declares the named contract.
func setContractAddress(info *deploy.Info, name, address string) error {
	addr, err := json.Marshal(address)
	if err != nil {
		return err
	}
	found := false
	for _, key := range info.State.Keys() {
		st, _ := info.State.Get(key)
		raw, ok := st.Artifacts.Contracts[name]
		if !ok {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("contract %s in %s: %w", name, key, errdefs.ErrInvalidArgument)
		}
		if fields == nil {
			fields = make(map[string]json.RawMessage)
		}
		fields["address"] = addr
		updated, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		contracts := make(map[string]json.RawMessage, len(st.Artifacts.Contracts))
		for k, v := range st.Artifacts.Contracts {
			contracts[k] = v
		}
		contracts[name] = updated
		st.Artifacts.Contracts = contracts
		info.State.Set(key, st)
		found = true
	}
	if !found {
		return fmt.Errorf("contract %s not found in any step: %w", name, errdefs.ErrNotFound)
	}
	return nil
}
