package model

import (
	"errors"
	"fmt"
)

// ErrInvalidArgument is the single error kind of the scoring and valuation
// engines: negative amounts, probabilities outside [0,100], unknown statuses.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrStale marks a write older than the last one applied to the same record.
var ErrStale = errors.New("stale write")

// InvalidArgument returns an ErrInvalidArgument annotated with the operation
// and a formatted detail message.
func InvalidArgument(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsInvalidArgument reports whether err is (or wraps) ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
