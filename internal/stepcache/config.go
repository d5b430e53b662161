package stepcache

import (
	_ "crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/opencontainers/go-digest"

	"github.com/bianoble/pkgrelay/internal/transform"
)

// RunConfig is the declared configuration of a script step.
type RunConfig struct {
	Exec     string   `json:"exec"`
	Func     string   `json:"func"`
	Modified []string `json:"modified"`
	Args     []string `json:"args,omitempty"`
	Env      []string `json:"env,omitempty"`
	Depends  []string `json:"depends,omitempty"`
}

// BuildContext is what step templates are rendered against.
type BuildContext = transform.Context

// Interpolate renders the templated fields of cfg against bctx. Func
// and Depends are left as written.
func Interpolate(cfg RunConfig, bctx BuildContext) (RunConfig, error) {
	out := cfg
	var err error
	if out.Exec, err = transform.Render(cfg.Exec, bctx); err != nil {
		return RunConfig{}, fmt.Errorf("exec: %w", err)
	}
	if out.Modified, err = transform.RenderAll(cfg.Modified, bctx); err != nil {
		return RunConfig{}, fmt.Errorf("modified: %w", err)
	}
	if out.Args, err = transform.RenderAll(cfg.Args, bctx); err != nil {
		return RunConfig{}, fmt.Errorf("args: %w", err)
	}
	if out.Env, err = transform.RenderAll(cfg.Env, bctx); err != nil {
		return RunConfig{}, fmt.Errorf("env: %w", err)
	}
	out.Depends = append([]string(nil), cfg.Depends...)
	return out, nil
}

// StateHash returns the hex sha256 of cfg's JSON encoding. Field order
// is fixed by the struct, so equal configs hash equally.
func StateHash(cfg RunConfig) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding run config: %w", err)
	}
	return digest.SHA256.FromBytes(data).Encoded(), nil
}

// MissingFile stands in for the hash of a modified path that does not
// exist.
const MissingFile = "notfound"

// ModifiedHashes hashes each path in cfg.Modified, relative to baseDir,
// followed by cfg.Exec itself. Directories hash their files in walk
// order. The result changes whenever a watched file does.
func ModifiedHashes(baseDir string, cfg RunConfig) ([]string, error) {
	out := make([]string, 0, len(cfg.Modified)+1)
	for _, p := range cfg.Modified {
		h, err := hashPath(filepath.Join(baseDir, p))
		if errors.Is(err, fs.ErrNotExist) {
			out = append(out, MissingFile)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hashing %s: %w", p, err)
		}
		out = append(out, h)
	}
	return append(out, cfg.Exec), nil
}

func hashPath(p string) (string, error) {
	d := digest.SHA256.Digester()
	err := filepath.WalkDir(p, func(name string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		_, _ = d.Hash().Write(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return d.Digest().Encoded(), nil
}
