// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LibraryDirName is the folder created under the user's documents folder.
const LibraryDirName = "LevChat"

// DefaultRoot returns ~/Documents/LevChat.
func DefaultRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "Documents", LibraryDirName), nil
}

// Library is a directory of models grouped by kind.
type Library struct {
	Root string
}

// NewLibrary returns a library rooted at root, or at DefaultRoot when root
// is empty.
func NewLibrary(root string) (*Library, error) {
	if root == "" {
		var err error
		if root, err = DefaultRoot(); err != nil {
			return nil, err
		}
	}
	return &Library{Root: root}, nil
}

// Dir returns the directory holding models of kind k.
func (l *Library) Dir(k Kind) string {
	return filepath.Join(l.Root, k.DirName())
}

// Path returns where a model file of kind k named name is stored.
func (l *Library) Path(k Kind, name string) string {
	return filepath.Join(l.Dir(k), name)
}

// EnsureDirs creates the directory of every kind.
func (l *Library) EnsureDirs() error {
	for _, k := range Kinds {
		if err := os.MkdirAll(l.Dir(k), 0755); err != nil {
			return fmt.Errorf("failed to create %s directory: %w", k.DirName(), err)
		}
	}
	return nil
}

// List returns the sorted model file names of kind k. The directory is
// created when missing.
func (l *Library) List(k Kind) ([]string, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, string(k))
	}
	dir := l.Dir(k)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ModelExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether a model file is present.
func (l *Library) Exists(k Kind, name string) bool {
	_, err := os.Stat(l.Path(k, name))
	return err == nil
}
