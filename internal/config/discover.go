package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// FileName is the settings file looked up at every level.
const FileName = "pkgrelay.yaml"

const dirName = "pkgrelay"

// Level is the precedence level of a settings file.
type Level string

const (
	LevelSystem  Level = "system"
	LevelUser    Level = "user"
	LevelProject Level = "project"
)

// LayerInfo describes a discovered settings file and its load status.
type LayerInfo struct {
	Err    error // non-nil if the file exists but failed to load
	Path   string
	Level  Level
	Loaded bool
}

// DiscoverOptions controls how settings paths are discovered.
type DiscoverOptions struct {
	// ProjectPath is the project-level settings path.
	ProjectPath string

	// SystemPath and UserPath override the OS defaults. Set them to a
	// nonexistent path to skip that level.
	SystemPath string
	UserPath   string
}

// DiscoverPaths returns the settings files to check, lowest precedence
// first. Paths are deduplicated by absolute path.
func DiscoverPaths(opts DiscoverOptions) []LayerInfo {
	var layers []LayerInfo
	seen := make(map[string]bool)

	add := func(level Level, path string) {
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if seen[abs] {
			return
		}
		seen[abs] = true
		layers = append(layers, LayerInfo{Path: path, Level: level})
	}

	sys := opts.SystemPath
	if sys == "" {
		sys = defaultSystemPath()
	}
	add(LevelSystem, sys)

	user := opts.UserPath
	if user == "" {
		user = defaultUserPath()
	}
	add(LevelUser, user)

	add(LevelProject, opts.ProjectPath)
	return layers
}

func defaultSystemPath() string {
	if runtime.GOOS == "windows" {
		pd := os.Getenv("ProgramData")
		if pd == "" {
			pd = `C:\ProgramData`
		}
		return filepath.Join(pd, dirName, FileName)
	}
	return filepath.Join("/etc", dirName, FileName)
}

func defaultUserPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, dirName, FileName)
}

// DefaultDataDir returns $XDG_DATA_HOME/pkgrelay, falling back to
// ~/.local/share/pkgrelay and then the temp directory.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), dirName)
	}
	return filepath.Join(home, ".local", "share", dirName)
}

// NoInherit reports whether PKGRELAY_NO_INHERIT asks to skip the system
// and user levels.
func NoInherit() bool {
	return envBoolTrue(os.Getenv("PKGRELAY_NO_INHERIT"))
}

func envBoolTrue(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true"
}
