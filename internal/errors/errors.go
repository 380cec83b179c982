// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides structured error handling for the Codaxi CLI and
// HTTP server.
//
// UserError carries what went wrong, why, and how to fix it, plus an exit
// code. Classify turns the sentinel errors of the scan, storage and archive
// packages into UserErrors so both surfaces report them the same way.
//
//	if err := orch.Cancel(ctx, id); err != nil {
//	    errors.FatalError(errors.Classify(err, "Cannot cancel scan"), jsonOutput)
//	}
//
// Format renders colored terminal output:
//
//	Error: Cannot cancel scan
//	Cause: scan not found
//	Fix:   Run 'codaxi scans --repo <id>' to list scan ids
//
// # Exit Codes
//
//   - ExitSuccess (0)
//   - ExitConfig (1): missing or invalid .codaxi/project.yaml or env
//   - ExitDatabase (2): the store cannot be opened or written
//   - ExitNetwork (3): GitHub, S3 or model provider failures
//   - ExitInput (4): bad arguments, invalid repository ids
//   - ExitPermission (5)
//   - ExitNotFound (6): unknown scan, doc or repository
//   - ExitInternal (10): bugs
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/scan"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

// Exit codes for different error categories.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitDatabase   = 2
	ExitNetwork    = 3
	ExitInput      = 4
	ExitPermission = 5
	ExitNotFound   = 6
	// ExitInternal signals "this is a bug that should be reported".
	ExitInternal = 10
)

// UserError is an error with structured context for end users.
type UserError struct {
	// Message describes what went wrong.
	Message string
	// Cause explains why it happened.
	Cause string
	// Fix is an actionable suggestion.
	Fix string

	ExitCode int
	Err      error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *UserError) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the exit code to the status the HTTP API answers with.
func (e *UserError) HTTPStatus() int {
	switch e.ExitCode {
	case ExitInput:
		return http.StatusBadRequest
	case ExitNotFound:
		return http.StatusNotFound
	case ExitPermission:
		return http.StatusForbidden
	case ExitNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(code int, msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: code, Err: err}
}

// NewConfigError reports a missing or invalid configuration.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return newError(ExitConfig, msg, cause, fix, err)
}

// NewDatabaseError reports a store failure.
func NewDatabaseError(msg, cause, fix string, err error) *UserError {
	return newError(ExitDatabase, msg, cause, fix, err)
}

// NewNetworkError reports a remote failure (GitHub, S3, model provider).
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return newError(ExitNetwork, msg, cause, fix, err)
}

// NewInputError reports invalid user input.
func NewInputError(msg, cause, fix string) *UserError {
	return newError(ExitInput, msg, cause, fix, nil)
}

// NewPermissionError reports denied file access.
func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return newError(ExitPermission, msg, cause, fix, err)
}

// NewNotFoundError reports an unknown scan, doc or repository.
func NewNotFoundError(msg, cause, fix string) *UserError {
	return newError(ExitNotFound, msg, cause, fix, nil)
}

// NewInternalError reports a bug.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return newError(ExitInternal, msg, cause, fix, err)
}

// Classify wraps err in a UserError whose category follows the domain
// sentinels err matches. A UserError is returned unchanged.
func Classify(err error, msg string) *UserError {
	if err == nil {
		return nil
	}
	var ue *UserError
	if stderrors.As(err, &ue) {
		return ue
	}

	cause := err.Error()
	switch {
	case stderrors.Is(err, scan.ErrMissingRepoID):
		return &UserError{Message: msg, Cause: "repoId is required", Fix: "Pass a repository id, e.g. --repo acme", ExitCode: ExitInput, Err: err}
	case stderrors.Is(err, scan.ErrInvalidRepoID):
		return &UserError{Message: msg, Cause: cause, Fix: "Repository ids may not contain slashes or control characters", ExitCode: ExitInput, Err: err}
	case stderrors.Is(err, storage.ErrConnectionNotFound):
		return &UserError{Message: msg, Cause: cause, Fix: "Run 'codaxi repo add' to register the repository", ExitCode: ExitNotFound, Err: err}
	case stderrors.Is(err, scan.ErrScanNotFound):
		return &UserError{Message: msg, Cause: cause, Fix: "Run 'codaxi scans --repo <id>' to list scan ids", ExitCode: ExitNotFound, Err: err}
	case stderrors.Is(err, storage.ErrNotFound):
		return &UserError{Message: msg, Cause: cause, Fix: "Run 'codaxi docs --repo <id>' to list documentation ids", ExitCode: ExitNotFound, Err: err}
	case stderrors.Is(err, archive.ErrConnectionInactive):
		return &UserError{Message: msg, Cause: cause, Fix: "Re-add the repository with 'codaxi repo add'", ExitCode: ExitInput, Err: err}
	case archive.IsRateLimited(err):
		return &UserError{Message: msg, Cause: cause, Fix: "Set GITHUB_TOKEN or wait for the rate limit to reset", ExitCode: ExitNetwork, Err: err}
	case archive.IsNotFound(err):
		return &UserError{Message: msg, Cause: cause, Fix: "Check the repository slug and that GITHUB_TOKEN can read it", ExitCode: ExitNotFound, Err: err}
	case stderrors.Is(err, context.DeadlineExceeded):
		return &UserError{Message: msg, Cause: "the operation timed out", Fix: "Retry, or raise LLM_TIMEOUT_MS for generation", ExitCode: ExitNetwork, Err: err}
	case stderrors.Is(err, os.ErrPermission):
		return &UserError{Message: msg, Cause: cause, Fix: "Check permissions of the .codaxi directory", ExitCode: ExitPermission, Err: err}
	}
	return &UserError{Message: msg, Cause: cause, ExitCode: ExitInternal, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format renders the error for a terminal. Colors are disabled by noColor
// or the NO_COLOR environment variable.
func (e *UserError) Format(noColor bool) string {
	// Save and restore global color state to avoid side effects
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")
	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}
	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}
	return out.String()
}

// ErrorJSON is the JSON form of a UserError.
type ErrorJSON struct {
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the error for --json output.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints err to stderr and exits with its exit code. Errors that
// are not UserErrors exit with ExitInternal.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}
	ue := Classify(err, "Unexpected error")
	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		// Encode error is ignored since we're about to exit.
		_ = enc.Encode(ue.ToJSON())
	} else {
		fmt.Fprint(os.Stderr, ue.Format(false))
	}
	os.Exit(ue.ExitCode)
}
