package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/bianoble/pkgrelay/internal/deploy"
	"github.com/bianoble/pkgrelay/internal/sandbox"
	"github.com/bianoble/pkgrelay/internal/storage"
)

// InspectOptions configures an inspect.
type InspectOptions struct {
	Ref     string
	ChainID int64
	Storage *storage.Storage

	// WriteDir, when set, receives one JSON file per contract in the
	// record, nested by import path.
	WriteDir string
}

// Inspect resolves a package and reads its record.
func Inspect(ctx context.Context, opts InspectOptions) (*InspectResult, error) {
	res, err := Resolve(ctx, opts.Ref, opts.ChainID, opts.Storage)
	if err != nil {
		return nil, err
	}
	info, err := opts.Storage.ReadDeployment(ctx, res.URL)
	if err != nil {
		return nil, &Error{Op: "inspect", Ref: res.Ref, ChainID: opts.ChainID, Err: err}
	}

	result := &InspectResult{Resolution: *res, Info: info}
	if opts.WriteDir == "" {
		return result, nil
	}

	root, err := sandbox.Open(opts.WriteDir)
	if err != nil {
		return nil, &Error{Op: "inspect", Ref: res.Ref, ChainID: opts.ChainID, Err: err}
	}
	files := ContractFiles(info)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var buf bytes.Buffer
		if err := json.Indent(&buf, files[name], "", "  "); err != nil {
			return nil, &Error{Op: "inspect", Ref: res.Ref, ChainID: opts.ChainID, Err: fmt.Errorf("formatting %s: %w", name, err)}
		}
		buf.WriteByte('\n')
		if err := root.WriteFile(name, buf.Bytes(), 0644); err != nil {
			return nil, &Error{Op: "inspect", Ref: res.Ref, ChainID: opts.ChainID, Err: err}
		}
		result.Written = append(result.Written, name)
	}
	return result, nil
}

// ContractFiles maps "<import path>/<Contract>.json" to contract data
// for every contract in the record and its nested imports. Later steps
// win when two write the same path.
func ContractFiles(info *deploy.Info) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, key := range info.State.Keys() {
		st, _ := info.State.Get(key)
		collectContracts(&st.Artifacts, "", out)
	}
	return out
}

func collectContracts(a *deploy.ChainArtifacts, dir string, out map[string]json.RawMessage) {
	for name, data := range a.Contracts {
		out[path.Join(dir, name+".json")] = data
	}
	for name, imp := range a.Imports {
		if imp != nil {
			collectContracts(imp, path.Join(dir, name), out)
		}
	}
}
