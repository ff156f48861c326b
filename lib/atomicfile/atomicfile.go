// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package atomicfile replaces files so that readers see either the old
// content or the new content, never a partial write.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
)

// Write replaces path with data. The data goes to a temporary file in
// the same directory, is fsynced, and is renamed into place; the parent
// directory is then synced so the rename survives power loss. The parent
// directory must already exist.
func Write(path string, data []byte, perm os.FileMode) error {
	temporary := path + ".tmp"
	file, err := os.OpenFile(temporary, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temporary, err)
	}

	// Write, sync, close, in that order. On failure remove the temporary
	// file and report the first error.
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporary)
		return fmt.Errorf("writing %s: %w", temporary, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporary)
		return fmt.Errorf("syncing %s: %w", temporary, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("closing %s: %w", temporary, err)
	}
	if err := os.Rename(temporary, path); err != nil {
		os.Remove(temporary)
		return fmt.Errorf("renaming %s into place: %w", path, err)
	}

	SyncDir(filepath.Dir(path))
	return nil
}

// SyncDir fsyncs a directory, making renames and creations inside it
// durable. Errors are ignored: not every filesystem supports syncing a
// directory.
func SyncDir(directory string) {
	dir, err := os.Open(directory)
	if err != nil {
		return
	}
	dir.Sync()
	dir.Close()
}
