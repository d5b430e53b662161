package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/containerd/log"

	"github.com/bianoble/pkgrelay/pkg/pkgrelay"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = os.Stdout }()
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// project writes a settings file with its own data directory and seeds
// greeter:1.0.0@main on chain 10.
func project(t *testing.T) (path, url string) {
	t.Helper()
	t.Setenv("PKGRELAY_NO_INHERIT", "1")
	dir := t.TempDir()
	path = filepath.Join(dir, "pkgrelay.yaml")
	content := "version: 1\ndata_dir: " + filepath.Join(dir, "data") + "\nlog:\n  level: error\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	client, err := pkgrelay.New(ctx, pkgrelay.Options{ConfigPath: path})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	record, _ := json.Marshal(map[string]any{
		"def": map[string]any{"name": "greeter", "version": "1.0.0"},
		"state": map[string]any{
			"contract.Greeter": map[string]any{
				"artifacts": map[string]any{"contracts": map[string]any{"Greeter": map[string]any{"address": "0x1"}}},
				"hash":      "h", "version": 1,
			},
		},
		"chainId": 10,
	})
	url, err = client.Local().PutBlob(ctx, json.RawMessage(record))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Local().Registry().Publish(ctx, []string{"greeter:1.0.0@main"}, 10, url, ""); err != nil {
		t.Fatal(err)
	}
	return path, url
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "pkgrelay dev") {
		t.Errorf("version output = %q", out)
	}
}

func TestResolveCommand(t *testing.T) {
	path, url := project(t)
	out, err := run(t, "--config", path, "resolve", "greeter:1.0.0", "--chain-id", "10")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != url {
		t.Errorf("resolve output = %q, want %q", out, url)
	}

	if _, err := run(t, "--config", path, "resolve", "greeter:9.9.9", "--chain-id", "10"); err == nil {
		t.Error("expected error for unknown package")
	}
}

func TestInspectCommand(t *testing.T) {
	path, _ := project(t)
	out, err := run(t, "--config", path, "inspect", "greeter:1.0.0", "--chain-id", "10", "-o", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "chainId: 10") || !strings.Contains(out, "name: greeter") {
		t.Errorf("yaml output = %s", out)
	}

	out, err = run(t, "--config", path, "inspect", "greeter:1.0.0", "--chain-id", "10", "-o", "text")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Greeter") || !strings.Contains(out, "version:  1.0.0") {
		t.Errorf("text output = %s", out)
	}
}

func TestProvisionedAndPublishCommands(t *testing.T) {
	path, _ := project(t)
	out, err := run(t, "--config", path, "provisioned", "greeter:1.0.0", "--chain-id", "10", "--tags", "stable")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "greeter:stable@main") {
		t.Errorf("provisioned output = %s", out)
	}

	if _, err := run(t, "--config", path, "publish", "greeter:1.0.0", "--chain-id", "10", "--tags", "latest"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	out, err = run(t, "--config", path, "resolve", "greeter:latest", "--chain-id", "10")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(strings.TrimSpace(out), "file://") {
		t.Errorf("resolve after publish = %q", out)
	}
}

func TestPublishRejectsZeroConcurrency(t *testing.T) {
	path, _ := project(t)
	t.Cleanup(func() { publishConcurrency = 4 })
	for _, n := range []string{"0", "-2"} {
		_, err := run(t, "--config", path, "publish", "greeter:1.0.0", "--chain-id", "10", "--concurrency="+n)
		if err == nil || !strings.Contains(err.Error(), "--concurrency must be at least 1") {
			t.Errorf("--concurrency %s: err = %v", n, err)
		}
	}
}

func TestAlterCommand(t *testing.T) {
	path, url := project(t)
	out, err := run(t, "--config", path, "alter", "greeter:1.0.0", "mark-incomplete", "--chain-id", "10")
	if err != nil {
		t.Fatal(err)
	}
	altered := strings.TrimSpace(out)
	if !strings.HasPrefix(altered, "file://") || altered == url {
		t.Errorf("alter output = %q", out)
	}

	out, err = run(t, "--config", path, "resolve", "greeter:1.0.0", "--chain-id", "10")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != altered {
		t.Errorf("resolve after alter = %q, want %q", out, altered)
	}

	if _, err := run(t, "--config", path, "alter", "greeter:1.0.0", "rename", "--chain-id", "10"); err == nil {
		t.Error("expected error for unknown alter command")
	}
}

func TestPruneAndInfoCommands(t *testing.T) {
	path, _ := project(t)
	out, err := run(t, "--config", path, "prune", "--dry-run", "--keep-age", "0s")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Nothing to prune") {
		t.Errorf("prune output = %s", out)
	}

	out, err = run(t, "--config", path, "info")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Backends:") || !strings.Contains(out, "file://") {
		t.Errorf("info output = %s", out)
	}
}

func TestLogLevelFlag(t *testing.T) {
	path, _ := project(t)
	if _, err := run(t, "--config", path, "--log-level", "debug", "version"); err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}
	if _, err := run(t, "--config", path, "--log-level", "shouting", "version"); err == nil {
		t.Error("expected error for bad log level")
	}
	// Reset for later tests.
	if _, err := run(t, "--config", path, "--log-level", "error", "version"); err != nil {
		t.Fatal(err)
	}
}
