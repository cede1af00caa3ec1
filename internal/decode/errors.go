package decode

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a required role left unassigned, an empty or
	// inverted window, or a bad decoder option. It is raised before scanning.
	ErrConfiguration = errors.New("decode: configuration error")
	// ErrCanceled reports cooperative cancellation. It is a terminal state,
	// not a failure: the accompanying Result holds the partial output.
	ErrCanceled   = errors.New("decode: canceled")
	ErrAlreadyRun = errors.New("decode: task already run for this configuration")
	ErrNilTask    = errors.New("decode: task is nil")
)

// Configf builds an ErrConfiguration with a formatted reason.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
