// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package output provides JSON output helpers for the Codaxi CLI and HTTP API.
//
// CLI commands with --json write through JSON/JSONTo:
//
//	if err := output.JSON(rec); err != nil {
//	    errors.FatalError(err, true)
//	}
//
// HTTP handlers wrap payloads in an Envelope:
//
//	output.WriteEnvelope(w, http.StatusCreated, output.OK(rec, "scan started"))
//	output.WriteEnvelope(w, http.StatusNotFound, output.Fail("scan not found"))
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// JSON writes data as pretty-printed JSON to stdout.
//
// The output is formatted with 2-space indentation. This is the standard
// format for --json output in Codaxi CLI commands.
func JSON(data any) error {
	return JSONTo(os.Stdout, data)
}

// JSONTo writes data as pretty-printed JSON to the specified writer.
func JSONTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// JSONCompactTo writes data as a single line of JSON. Used for streamed
// progress lines and MCP tool results.
func JSONCompactTo(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("JSON encoding failed: %w", err)
	}
	return nil
}

// Envelope is the response body of every API endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK builds a successful envelope.
func OK(data any, message string) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

// Fail builds an error envelope.
func Fail(message string) Envelope {
	return Envelope{Success: false, Error: message}
}

// WriteEnvelope writes env with the given status code.
func WriteEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

// JSONError writes an error envelope to stderr.
//
// This keeps error output consistent with the API when --json is active.
func JSONError(err error) error {
	return JSONErrorTo(os.Stderr, err)
}

// JSONErrorTo writes an error envelope to the specified writer.
func JSONErrorTo(w io.Writer, err error) error {
	if encErr := JSONTo(w, Fail(err.Error())); encErr != nil {
		return fmt.Errorf("JSON error encoding failed: %w", encErr)
	}
	return nil
}
