package capture

import (
	"errors"
	"fmt"
)

var ErrEmptyWindow = errors.New("capture: empty decode window")

// Window is the [Start, End) sample range a decoder analyzes.
type Window struct {
	Start int `json:"start" toml:"start"`
	End   int `json:"end" toml:"end"`
}

// FullWindow covers every sample of s.
func FullWindow(s *Stream) Window {
	return Window{Start: 0, End: s.Len()}
}

// Len returns the number of samples in the window.
func (w Window) Len() int {
	if w.End <= w.Start {
		return 0
	}
	return w.End - w.Start
}

// IsZero reports whether w was left unset.
func (w Window) IsZero() bool {
	return w.Start == 0 && w.End == 0
}

// Validate checks w against a stream of n samples. An empty or inverted
// window is ErrEmptyWindow; a window reaching past the data is ErrOutOfRange.
func (w Window) Validate(n int) error {
	if w.Start < 0 {
		return fmt.Errorf("%w: start %d is negative", ErrEmptyWindow, w.Start)
	}
	if w.End > n {
		return fmt.Errorf("%w: window end %d beyond %d samples", ErrOutOfRange, w.End, n)
	}
	if w.Start >= w.End {
		return fmt.Errorf("%w: start %d >= end %d", ErrEmptyWindow, w.Start, w.End)
	}
	return nil
}

func (w Window) String() string {
	return fmt.Sprintf("[%d,%d)", w.Start, w.End)
}
