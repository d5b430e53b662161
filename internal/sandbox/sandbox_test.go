package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/containerd/errdefs"
)

func openRoot(t *testing.T) *Root {
	t.Helper()
	r, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	r, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fi, err := os.Stat(r.Dir()); err != nil || !fi.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestOpenRejectsEmpty(t *testing.T) {
	if _, err := Open(""); !errdefs.IsInvalidArgument(err) {
		t.Fatalf("err = %v, want invalid argument", err)
	}
}

func TestResolveWithinRoot(t *testing.T) {
	r := openRoot(t)

	resolved, err := r.Resolve("subdir/file.txt")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(r.Dir(), "subdir", "file.txt"); resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}

	self, err := r.Resolve(".")
	if err != nil || self != r.Dir() {
		t.Errorf("Resolve(.) = %q, %v", self, err)
	}
}

func TestResolveRejectsEscapes(t *testing.T) {
	r := openRoot(t)

	tests := []string{
		"../escape.txt",
		"subdir/../../escape.txt",
		"a/b/c/../../../../escape.txt",
		"/etc/passwd",
	}
	for _, rel := range tests {
		t.Run(rel, func(t *testing.T) {
			_, err := r.Resolve(rel)
			if !errors.Is(err, ErrEscape) {
				t.Fatalf("err = %v, want ErrEscape", err)
			}
			if !errdefs.IsInvalidArgument(err) {
				t.Errorf("escape should classify as invalid argument")
			}
		})
	}
}

func TestResolveSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink test not reliable on Windows")
	}
	r := openRoot(t)

	if err := os.Symlink(t.TempDir(), filepath.Join(r.Dir(), "escape-link")); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve("escape-link/file.txt"); !errors.Is(err, ErrEscape) {
		t.Errorf("outside symlink: err = %v, want ErrEscape", err)
	}

	realDir := filepath.Join(r.Dir(), "real")
	if err := os.MkdirAll(realDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(realDir, filepath.Join(r.Dir(), "link")); err != nil {
		t.Fatal(err)
	}
	resolved, err := r.Resolve("link/file.txt")
	if err != nil {
		t.Fatalf("internal symlink: %v", err)
	}
	if want := filepath.Join(realDir, "file.txt"); resolved != want {
		t.Errorf("got %q, want %q", resolved, want)
	}
}

func TestWriteReadRemove(t *testing.T) {
	r := openRoot(t)

	if err := r.WriteFile("subdir/test.json", []byte("original"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := r.WriteFile("subdir/test.json", []byte("updated"), 0644); err != nil {
		t.Fatalf("WriteFile overwrite: %v", err)
	}

	data, err := r.ReadFile("subdir/test.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "updated" {
		t.Errorf("content = %q", data)
	}

	entries, err := r.ReadDir("subdir")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}

	if err := r.Remove("subdir/test.json"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := r.ReadFile("subdir/test.json"); !errdefs.IsNotFound(err) {
		t.Errorf("ReadFile after remove: err = %v, want not found", err)
	}
	if err := r.Remove("subdir/test.json"); !errdefs.IsNotFound(err) {
		t.Errorf("second Remove: err = %v, want not found", err)
	}
}

func TestWritePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission test not reliable on Windows")
	}
	r := openRoot(t)

	if err := r.WriteFile("test.txt", []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	fi, err := r.Stat("test.txt")
	if err != nil {
		t.Fatal(err)
	}
	if perm := fi.Mode().Perm(); perm != 0600 {
		t.Errorf("permission = %04o, want 0600", perm)
	}
}

func TestWriteRejectsEscape(t *testing.T) {
	r := openRoot(t)
	if err := r.WriteFile("../escape.txt", []byte("bad"), 0644); !errors.Is(err, ErrEscape) {
		t.Fatalf("err = %v, want ErrEscape", err)
	}
	if err := r.MkdirAll("../escape", 0755); !errors.Is(err, ErrEscape) {
		t.Fatalf("MkdirAll err = %v, want ErrEscape", err)
	}
}

func TestReadDirMissing(t *testing.T) {
	r := openRoot(t)
	entries, err := r.ReadDir("nope")
	if err != nil || entries != nil {
		t.Errorf("ReadDir missing = %v, %v", entries, err)
	}
}

func TestStatMissing(t *testing.T) {
	r := openRoot(t)
	if _, err := r.Stat("missing"); !errdefs.IsNotFound(err) {
		t.Errorf("err = %v, want not found", err)
	}
}
