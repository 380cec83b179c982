// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"encoding/json"
	"os"
	"strconv"
)

const (
	// DefaultMaxJSONChars is the largest serialized size kept for a single
	// generated schema field.
	DefaultMaxJSONChars = 10_000

	// DefaultMaxRequestBytes bounds HTTP request bodies accepted by the API.
	DefaultMaxRequestBytes = 1 << 20 // 1 MiB

	// RepoIDMaxBytes is the maximum length for a repository identifier.
	RepoIDMaxBytes = 128
)

// MaxJSONChars returns the effective clamp size for generated JSON values.
// Controlled via env CODAXI_MAX_JSON_CHARS; falls back to DefaultMaxJSONChars.
func MaxJSONChars() int {
	if v := os.Getenv("CODAXI_MAX_JSON_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return DefaultMaxJSONChars
}

// Truncated is the placeholder that replaces an oversized value.
func Truncated() map[string]any {
	return map[string]any{"_truncated": true}
}

// ClampJSON returns v unchanged when its JSON encoding fits in limit
// characters, and the truncation placeholder otherwise. Values that cannot
// be encoded are returned unchanged.
func ClampJSON(v any, limit int) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if len([]rune(string(b))) <= limit {
		return v
	}
	return Truncated()
}

// ValidationResult represents the result of a validation check.
type ValidationResult struct {
	OK      bool
	Message string
}

// ValidateRepoID checks a repository identifier supplied by a caller.
func ValidateRepoID(id string) *ValidationResult {
	switch {
	case id == "":
		return &ValidationResult{OK: false, Message: "repoId is required"}
	case len(id) > RepoIDMaxBytes:
		return &ValidationResult{OK: false, Message: "repoId exceeds maximum length"}
	}
	for _, r := range id {
		if r == '/' || r == '\\' || r < 0x20 {
			return &ValidationResult{OK: false, Message: "repoId contains invalid characters"}
		}
	}
	if id == "." || id == ".." {
		return &ValidationResult{OK: false, Message: "repoId contains invalid characters"}
	}
	return &ValidationResult{OK: true}
}
