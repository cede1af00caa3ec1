package capture

import (
	"errors"
	"fmt"
	"sort"
)

// MaxChannels is the widest sample a Stream can address.
const MaxChannels = 64

var (
	ErrInvalidStream  = errors.New("capture: invalid stream")
	ErrOutOfRange     = errors.New("capture: sample index out of range")
	ErrUnassigned     = errors.New("capture: channel unassigned")
	ErrInvalidChannel = errors.New("capture: invalid channel")
)

// Stream is an immutable capture of digital samples.
//
// Values and Timestamps are parallel: index i is the sample ordinal, Values[i]
// holds one bit per channel and Timestamps[i] is the tick (at Rate ticks per
// second) at which that sample was taken. Timestamps never decrease.
type Stream struct {
	values     []uint64
	timestamps []int64
	channels   int
	rate       int64
}

// NewStream validates and wraps acquisition output. The slices are copied so
// the stream stays read-only for its lifetime.
func NewStream(values []uint64, timestamps []int64, channels int, rate int64) (*Stream, error) {
	if len(values) != len(timestamps) {
		return nil, fmt.Errorf("%w: %d values but %d timestamps", ErrInvalidStream, len(values), len(timestamps))
	}
	if channels <= 0 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d not in [1,%d]", ErrInvalidStream, channels, MaxChannels)
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d must be positive", ErrInvalidStream, rate)
	}
	for i := 1; i < len(timestamps); i++ {
		if timestamps[i] < timestamps[i-1] {
			return nil, fmt.Errorf("%w: timestamp %d decreases at sample %d", ErrInvalidStream, timestamps[i], i)
		}
	}

	s := &Stream{
		values:     make([]uint64, len(values)),
		timestamps: make([]int64, len(timestamps)),
		channels:   channels,
		rate:       rate,
	}
	copy(s.values, values)
	copy(s.timestamps, timestamps)
	return s, nil
}

// Len returns the number of samples.
func (s *Stream) Len() int {
	return len(s.values)
}

// Channels returns the number of channels carried per sample.
func (s *Stream) Channels() int {
	return s.channels
}

// Rate returns the sample clock in ticks per second.
func (s *Stream) Rate() int64 {
	return s.rate
}

// Sample returns the raw bitmask at index i.
func (s *Stream) Sample(i int) (uint64, error) {
	if i < 0 || i >= len(s.values) {
		return 0, fmt.Errorf("%w: sample %d not in [0,%d)", ErrOutOfRange, i, len(s.values))
	}
	return s.values[i], nil
}

// Timestamp returns the tick of sample i.
func (s *Stream) Timestamp(i int) (int64, error) {
	if i < 0 || i >= len(s.timestamps) {
		return 0, fmt.Errorf("%w: timestamp %d not in [0,%d)", ErrOutOfRange, i, len(s.timestamps))
	}
	return s.timestamps[i], nil
}

// BitAt returns the value of channel ch at sample i.
func (s *Stream) BitAt(ch Channel, i int) (uint8, error) {
	mask, err := s.MaskOf(ch)
	if err != nil {
		return 0, err
	}
	v, err := s.Sample(i)
	if err != nil {
		return 0, err
	}
	return bit(v, mask), nil
}

// MaskOf returns the bit mask of ch, checked against this stream's width.
func (s *Stream) MaskOf(ch Channel) (uint64, error) {
	if ch.Assigned() && int(ch) >= s.channels {
		return 0, fmt.Errorf("%w: channel %d not in [0,%d)", ErrInvalidChannel, ch, s.channels)
	}
	return ch.Mask()
}

// IndexAt returns the last sample index whose timestamp is <= ts. It returns
// -1 when ts precedes the first sample.
func (s *Stream) IndexAt(ts int64) int {
	n := sort.Search(len(s.timestamps), func(i int) bool {
		return s.timestamps[i] > ts
	})
	return n - 1
}

// Values returns a copy of the sample bitmasks.
func (s *Stream) Values() []uint64 {
	out := make([]uint64, len(s.values))
	copy(out, s.values)
	return out
}

// Timestamps returns a copy of the sample ticks.
func (s *Stream) Timestamps() []int64 {
	out := make([]int64, len(s.timestamps))
	copy(out, s.timestamps)
	return out
}

func bit(v, mask uint64) uint8 {
	if v&mask != 0 {
		return 1
	}
	return 0
}
