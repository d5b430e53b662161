package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/containerd/log"
	"github.com/spf13/cobra"

	"github.com/bianoble/pkgrelay/internal/config"
)

// stdout receives user-facing output.
var stdout io.Writer = os.Stdout

// setupLogging applies --log-level, --verbose and the settings file's
// log section. Flags win over the file.
func setupLogging(cmd *cobra.Command) error {
	level, format := "warn", config.FormatText
	if cfg, err := config.Parse(configPath); err == nil {
		if cfg.Log.Level != "" {
			level = cfg.Log.Level
		}
		if cfg.Log.Format != "" {
			format = cfg.Log.Format
		}
	}
	if v := os.Getenv(config.EnvPrefix + "LOG_LEVEL"); v != "" {
		level = v
	}
	if verbose {
		level = "debug"
	}
	if cmd.Flags().Changed("log-level") {
		level = logLevel
	}

	log.L.Logger.SetOutput(os.Stderr)
	if err := log.SetLevel(strings.ToLower(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if err := log.SetFormat(log.OutputFormat(format)); err != nil {
		return fmt.Errorf("invalid log format %q: %w", format, err)
	}
	return nil
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(stdout, format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Fprintf(stdout, "  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}

func humanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}
