package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// AtomicWrite writes data to a file atomically, keeping the permissions of
// an existing file. New files are created 0600 since they hold credentials.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	perm := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	return renameio.WriteFile(path, data, perm)
}

// ErrConfigExists is returned by WriteDefaultConfig when the file exists and
// overwrite was not requested.
var ErrConfigExists = errors.New("config file already exists")

// WriteDefaultConfig writes DefaultConfigYAML to path.
func WriteDefaultConfig(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("%s: %w", path, ErrConfigExists)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := AtomicWrite(path, []byte(DefaultConfigYAML)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
