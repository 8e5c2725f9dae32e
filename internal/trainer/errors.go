package trainer

import (
	"errors"
	"fmt"
)

var (
	// ErrDegenerateAggregate is returned when every year of a split was
	// skipped, leaving nothing to average over.
	ErrDegenerateAggregate = errors.New("trainer: no year of the split has enough labelled edges")

	// ErrMissingStatistics is returned when dynamic node features are enabled
	// but normalization statistics can neither be supplied nor computed.
	ErrMissingStatistics = errors.New("trainer: node feature statistics unavailable")

	// ErrInvalidOptions wraps every construction-time validation failure
	ErrInvalidOptions = errors.New("trainer: invalid options")
)

// DegenerateError names the split whose aggregate had a zero denominator
type DegenerateError struct {
	Split string
	Years []int
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("%v: split %s, years %v", ErrDegenerateAggregate, e.Split, e.Years)
}

func (e *DegenerateError) Unwrap() error { return ErrDegenerateAggregate }
