// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// =============================================================================
// ATOMIC FILE
// =============================================================================

// AtomicFile is a temporary file that replaces its destination only when
// committed. Writers either see the old file or the complete new one.
//
// Usage:
//
//	f, err := util.CreateAtomic(path, 0644)
//	if err != nil { ... }
//	defer f.Abort()
//	io.Copy(f, body)
//	return f.Commit()
type AtomicFile struct {
	*os.File
	dst  string
	perm os.FileMode
	done bool
}

// CreateAtomic opens a temporary file next to path. The parent directory is
// created when missing.
func CreateAtomic(path string, perm os.FileMode) (*AtomicFile, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Same directory as the destination so the final rename stays on one filesystem
	f, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(absPath)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	return &AtomicFile{File: f, dst: absPath, perm: perm}, nil
}

// Commit syncs the temporary file and renames it over the destination.
func (a *AtomicFile) Commit() error {
	if a.done {
		return fmt.Errorf("atomic file %s already finished", a.dst)
	}
	a.done = true
	tmp := a.Name()

	if err := a.Sync(); err != nil {
		a.File.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync data to disk: %w", err)
	}
	// Windows refuses to rename an open file
	if err := a.File.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmp, a.perm); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to set file permissions: %w", err)
	}
	if err := os.Rename(tmp, a.dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Abort discards the temporary file. It is a no-op after Commit, so it is
// safe to defer.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	a.File.Close()
	os.Remove(a.Name())
}

// Destination returns the path the file is committed to.
func (a *AtomicFile) Destination() string {
	return a.dst
}

// AtomicWriteFile writes data to path through an AtomicFile.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	f, err := CreateAtomic(path, perm)
	if err != nil {
		return err
	}
	defer f.Abort()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}
	return f.Commit()
}
