// Package stepcache records the side effects of a script step, keyed by
// a hash of its interpolated configuration, so an unchanged step can be
// replayed instead of executed again.
package stepcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/containerd/errdefs"
	"github.com/opencontainers/go-digest"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/sandbox"
)

// Txn is a transaction captured while a step ran.
type Txn struct {
	From    string `json:"from"`
	To      string `json:"to,omitempty"`
	Data    string `json:"data,omitempty"`
	Value   string `json:"value,omitempty"`
	Gas     string `json:"gasLimit,omitempty"`
	ChainID int64  `json:"chainId,omitempty"`
}

// Record is what a step left behind: the transactions it sent and the
// artifacts it returned.
type Record struct {
	Txns   []Txn                 `json:"txns"`
	Output deploy.ChainArtifacts `json:"output"`
}

// Dir is the directory under a package directory that holds records.
const Dir = "cache"

// recordPath returns the record location relative to the cache dir.
func recordPath(stateHash string) (string, error) {
	if err := digest.SHA256.Validate(stateHash); err != nil {
		return "", fmt.Errorf("invalid state hash %q: %v: %w", stateHash, err, errdefs.ErrInvalidArgument)
	}
	return path.Join(stateHash[:2], stateHash+".json"), nil
}

// Get loads the record for stateHash. A missing record is a miss, not
// an error. An unreadable record is removed and also reported as a miss.
func Get(packageDir, stateHash string) (*Record, bool, error) {
	rel, err := recordPath(stateHash)
	if err != nil {
		return nil, false, err
	}
	root, err := sandbox.Open(filepath.Join(packageDir, Dir))
	if err != nil {
		return nil, false, fmt.Errorf("opening step cache: %w", err)
	}

	data, err := root.ReadFile(rel)
	if errors.Is(err, errdefs.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading step cache entry %s: %w", stateHash, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = root.Remove(rel)
		return nil, false, nil
	}
	return &rec, true, nil
}

// Put stores rec under stateHash, replacing any previous record.
func Put(packageDir, stateHash string, rec Record) error {
	rel, err := recordPath(stateHash)
	if err != nil {
		return err
	}
	if rec.Txns == nil {
		rec.Txns = []Txn{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding step cache entry: %w", err)
	}
	root, err := sandbox.Open(filepath.Join(packageDir, Dir))
	if err != nil {
		return fmt.Errorf("opening step cache: %w", err)
	}
	if err := root.WriteFile(rel, data, 0644); err != nil {
		return fmt.Errorf("writing step cache entry %s: %w", stateHash, err)
	}
	return nil
}
