// ABOUTME: Error types for the claude CLI engine
// ABOUTME: Process exit and result errors plus the authentication sentinel

package claudecli

import (
	"errors"
	"fmt"
)

// ErrAuthentication is matched by errors caused by a missing or invalid login.
var ErrAuthentication = errors.New("claude authentication required")

// ProcessError describes a claude process that exited unsuccessfully.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("claude exited with code %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("claude exited with code %d: %v", e.ExitCode, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ResultError is reported when the CLI finishes with is_error set.
type ResultError struct {
	Subtype string
	Message string
}

func (e *ResultError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("claude result error (%s)", e.Subtype)
	}
	return fmt.Sprintf("claude result error (%s): %s", e.Subtype, e.Message)
}

// Is lets authentication failures match ErrAuthentication.
func (e *ResultError) Is(target error) bool {
	return target == ErrAuthentication && isAuthMessage(e.Message)
}
