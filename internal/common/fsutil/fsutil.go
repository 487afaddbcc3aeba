// Package fsutil resolves filesystem paths for the blob store.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolveStorePath expands a leading '~' in path and creates the parent
// directory so a fresh database file can be opened there on first run.
func ResolveStorePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("store path is empty")
	}
	p, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create store dir: %w", err)
		}
	}
	return p, nil
}

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/inferd/store.db
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
