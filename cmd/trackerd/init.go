package main

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

//go:embed init_data/config.example.yaml
var configExample []byte

// runInit initializes a trackerd working directory with default files.
// It creates the data directory and copies the bundled example config.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing trackerd workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "activity-tracker-data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, configExample); err != nil {
		return err
	}
	fmt.Fprintf(w, "  created %s\n", configPath)
	fmt.Fprintf(w, "  created %s\n", dataDir)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to customize capture interval, AFK timeout, and the summarization model.")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
