package engine

import "errors"

// Sentinel error kinds, wrapped via fmt.Errorf("...: %w", ...) at the call
// site so callers can classify failures with errors.Is while still getting
// a specific message (spec.md section 7).
var (
	ErrIllegalMove = errors.New("engine: illegal move")
	ErrIo          = errors.New("engine: io error")
	ErrGameOver    = errors.New("engine: game already decided")
)
