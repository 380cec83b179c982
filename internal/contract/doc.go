// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package contract provides payload limits and caller-input validation.
//
// # JSON Size Limits
//
// Generated documentation is clamped field by field so a runaway model
// answer cannot bloat stored schema versions:
//
//	limit := contract.MaxJSONChars() // 10,000 by default
//	v = contract.ClampJSON(v, limit) // {"_truncated": true} when over limit
//
// The limit can be adjusted via CODAXI_MAX_JSON_CHARS.
//
// # Repository Identifiers
//
// Repository ids become directory names in the archive cache, so
// ValidateRepoID rejects path separators and dot segments.
package contract
