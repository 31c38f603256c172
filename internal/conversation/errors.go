// ABOUTME: Error taxonomy for the conversation gateway
// ABOUTME: InvalidArgument for caller mistakes, EngineFailure for engine errors

package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument marks requests rejected before reaching the engine.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEngineFailure marks requests failed by the engine.
	ErrEngineFailure = errors.New("engine failure")
)

// EngineError wraps an engine failure for one request.
type EngineError struct {
	RequestID string
	Err       error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine failure: %v", e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is reports ErrEngineFailure as a match so callers can use errors.Is.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngineFailure
}

func invalidArgument(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, msg)
}
