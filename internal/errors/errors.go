// Copyright 2025 MRCIS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package errors provides structured, user-facing errors for the MRCIS CLI
// and typed domain error kinds for the indexing runtime.
//
// A UserError carries three levels of information: what went wrong (Message),
// why it happened (Cause), and how to fix it (Fix), plus the process exit
// code. Domain error kinds (StorageError, ExtractionError, EmbeddingError,
// ErrReadOnly) classify failures at component boundaries and are compatible
// with errors.Is / errors.As.
//
// # Exit Codes
//
//   - ExitSuccess (0): successful execution
//   - ExitError (1): generic runtime error
//   - ExitConfig (2): configuration invalid or missing
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for the CLI.
const (
	// ExitSuccess indicates successful execution.
	ExitSuccess = 0

	// ExitError indicates a generic runtime error.
	ExitError = 1

	// ExitConfig indicates invalid or missing configuration.
	ExitConfig = 2
)

// UserError represents an error with structured context for end users.
type UserError struct {
	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred.
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is used when the process exits due to this error.
	ExitCode int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *UserError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a configuration error with exit code ExitConfig.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewRuntimeError creates a generic runtime error with exit code ExitError.
func NewRuntimeError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitError, Err: err}
}

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display. Color output
// respects the NO_COLOR environment variable and the noColor parameter.
func (e *UserError) Format(noColor bool) string {
	useColor := !noColor && os.Getenv("NO_COLOR") == ""

	var b strings.Builder
	if useColor {
		b.WriteString(colorError.Sprintf("Error: %s", e.Message))
	} else {
		fmt.Fprintf(&b, "Error: %s", e.Message)
	}
	b.WriteString("\n")

	if e.Cause != "" {
		if useColor {
			b.WriteString(colorCause.Sprintf("Cause: %s", e.Cause))
		} else {
			fmt.Fprintf(&b, "Cause: %s", e.Cause)
		}
		b.WriteString("\n")
	}

	if e.Fix != "" {
		if useColor {
			b.WriteString(colorFix.Sprintf("Fix:   %s", e.Fix))
		} else {
			fmt.Fprintf(&b, "Fix:   %s", e.Fix)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// ToJSON returns the error as a JSON-serializable map.
func (e *UserError) ToJSON() map[string]any {
	out := map[string]any{
		"error":     e.Message,
		"exit_code": e.ExitCode,
	}
	if e.Cause != "" {
		out["cause"] = e.Cause
	}
	if e.Fix != "" {
		out["fix"] = e.Fix
	}
	return out
}

// FatalError prints the error and exits with its exit code. A plain error
// (not a UserError) exits with ExitError.
func FatalError(err error, jsonOutput bool) {
	var ue *UserError
	if !errors.As(err, &ue) {
		ue = NewRuntimeError(err.Error(), "", "", nil)
	}
	if jsonOutput {
		_ = json.NewEncoder(os.Stderr).Encode(ue.ToJSON())
	} else {
		fmt.Fprint(os.Stderr, ue.Format(false))
	}
	os.Exit(ue.ExitCode)
}
