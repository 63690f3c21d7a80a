package search

import "errors"

// ErrHalted is returned when a search observes cancellation (context done
// or a shared stop flag raised by a root coordinator). The accompanying
// score is eval.Invalid() and must be discarded, never treated as a
// result, per spec.md section 7.
var ErrHalted = errors.New("search: halted")
