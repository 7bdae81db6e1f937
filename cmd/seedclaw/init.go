package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/seedclaw/seedclaw/internal/defaults"
)

// runInit writes the example configuration into dir. Existing files
// are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing SeedClaw workspace in %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	written, err := writeIfMissing(configPath, defaults.ConfigYAML)
	if err != nil {
		return err
	}
	if written {
		fmt.Fprintf(w, "  wrote %s\n", configPath)
	} else {
		fmt.Fprintf(w, "  kept existing %s\n", configPath)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Set anthropic.api_key and the discord section in config.yaml, or use")
	fmt.Fprintln(w, "`seedclaw admin api-key ...` and `seedclaw admin discord ...`.")
	return nil
}

func writeIfMissing(path string, content []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
