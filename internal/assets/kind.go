// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assets

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ModelExt is the file extension of a model.
const ModelExt = ".gguf"

// =============================================================================
// KIND
// =============================================================================

// Kind distinguishes language models from embedding models.
type Kind string

const (
	KindLanguageModel  Kind = "languageModel"
	KindEmbeddingModel Kind = "embeddingModel"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindLanguageModel, KindEmbeddingModel}

// ErrInvalidKind is returned for an unknown kind name.
var ErrInvalidKind = errors.New("invalid model type")

// ParseKind accepts the wire names and the short aliases "language",
// "llm", "embedding" and "em".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "languagemodel", "language", "llm", "model":
		return KindLanguageModel, nil
	case "embeddingmodel", "embedding", "em", "em_model":
		return KindEmbeddingModel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// DirName returns the library subdirectory of the kind.
func (k Kind) DirName() string {
	if k == KindEmbeddingModel {
		return "em_model"
	}
	return "model"
}

// Label returns a human-readable name.
func (k Kind) Label() string {
	if k == KindEmbeddingModel {
		return "Embedding model"
	}
	return "Language model"
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindLanguageModel || k == KindEmbeddingModel
}

// =============================================================================
// URL VALIDATION
// =============================================================================

// ErrInvalidURL is returned for a URL that does not point at a GGUF file.
var ErrInvalidURL = errors.New("invalid model URL")

// ValidateURL checks that raw points at a GGUF file: the URL must end in
// ".gguf" or contain ".gguf?download=true", case-insensitively.
func ValidateURL(raw string) error {
	s := strings.TrimSpace(raw)
	if s == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	lower := strings.ToLower(s)
	if strings.HasSuffix(lower, ModelExt) || strings.Contains(lower, ModelExt+"?download=true") {
		return nil
	}
	return fmt.Errorf("%w: must end with %s", ErrInvalidURL, ModelExt)
}

// FileNameFromURL returns the last path segment of raw, without the query.
func FileNameFromURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: could not extract file name", ErrInvalidURL)
	}
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if strings.ContainsAny(name, `/\`) || name == ".." {
		return "", fmt.Errorf("%w: unsafe file name %q", ErrInvalidURL, name)
	}
	return name, nil
}
