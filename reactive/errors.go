package reactive

import (
	"errors"
	"fmt"
)

var (
	// ErrEffectPanic wraps a value recovered from an effect body or cleanup
	// that panicked during a scheduled flush.
	ErrEffectPanic = errors.New("reactive: effect panicked")

	// ErrFlushLimit is returned by RunUntilIdle when effects keep scheduling
	// each other past the configured number of passes.
	ErrFlushLimit = errors.New("reactive: flush limit exceeded")
)

// EffectError is what the error handler receives when an effect fails
// during a flush.
type EffectError struct {
	EffectID uint64
	Err      error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("reactive: effect %d: %v", e.EffectID, e.Err)
}

func (e *EffectError) Unwrap() error {
	return e.Err
}
