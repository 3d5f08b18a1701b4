// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	require.NoError(t, AtomicWriteFile(path, []byte("one"), 0600))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, AtomicWriteFile(path, []byte("two"), 0600))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestAtomicFile_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.gguf")

	f, err := CreateAtomic(path, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte("partial"))
	require.NoError(t, err)
	f.Abort()
	f.Abort()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAtomicFile_CommitOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.txt")

	f, err := CreateAtomic(path, 0644)
	require.NoError(t, err)
	assert.Equal(t, path, f.Destination())
	_, err = f.WriteString("data")
	require.NoError(t, err)
	require.NoError(t, f.Commit())
	assert.Error(t, f.Commit())

	// Abort after commit must not remove the destination
	f.Abort()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestNormalizeLine(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  hello\n\tworld  ", "hello world"},
		{"", ""},
		{"\n\n", ""},
		{"café", "café"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeLine(tc.in), "input %q", tc.in)
	}
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"ascii", "hello world", 8, "hello w…"},
		{"cjk", "日本語テキスト", 7, "日本語…"},
		{"zero", "hello", 0, ""},
		{"one column", "hello", 1, "h"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := TruncateWidth(tc.in, tc.width)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, StringWidth(got), tc.width)
		})
	}
}

func TestPadWidth(t *testing.T) {
	assert.Equal(t, "ab   ", PadWidth("ab", 5))
	assert.Equal(t, "日本 ", PadWidth("日本", 5))
	assert.Equal(t, "abcd…", PadWidth("abcdefgh", 5))
}
