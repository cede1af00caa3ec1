package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/danmuck/sniffctl/internal/capture"
)

// Capture payload field ids.
const (
	FieldChannels   uint16 = 1
	FieldRate       uint16 = 2
	FieldCount      uint16 = 3
	FieldValues     uint16 = 4
	FieldTimestamps uint16 = 5
)

// Encode writes s as one capture frame. Values are packed big-endian using
// the smallest whole number of bytes that holds every channel.
func Encode(w io.Writer, s *capture.Stream) error {
	return EncodeWithLimits(w, s, DefaultLimits())
}

func EncodeWithLimits(w io.Writer, s *capture.Stream, limits Limits) error {
	n := s.Len()
	width := valueWidth(s.Channels())

	values := make([]byte, n*width)
	for i, v := range s.Values() {
		putPacked(values[i*width:(i+1)*width], v)
	}
	timestamps := make([]byte, n*8)
	for i, ts := range s.Timestamps() {
		binary.BigEndian.PutUint64(timestamps[i*8:(i+1)*8], uint64(ts))
	}

	payload := EncodeFields([]Field{
		U32Field(FieldChannels, uint32(s.Channels())),
		U64Field(FieldRate, uint64(s.Rate())),
		U64Field(FieldCount, uint64(n)),
		BytesField(FieldValues, values),
		BytesField(FieldTimestamps, timestamps),
	})
	return WriteFrame(w, Frame{Header: Header{Kind: KindCapture}, Payload: payload}, limits)
}

// Decode reads one capture frame and validates it into a Stream.
func Decode(r io.Reader, limits Limits) (*capture.Stream, error) {
	f, err := ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}
	if f.Header.Kind != KindCapture {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedKind, f.Header.Kind)
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		return nil, err
	}

	channels, err := getU32(fields, FieldChannels)
	if err != nil {
		return nil, err
	}
	rate, err := getU64(fields, FieldRate)
	if err != nil {
		return nil, err
	}
	count, err := getU64(fields, FieldCount)
	if err != nil {
		return nil, err
	}
	if channels == 0 || channels > capture.MaxChannels {
		return nil, fmt.Errorf("%w: channel count %d", capture.ErrInvalidStream, channels)
	}
	width := valueWidth(int(channels))

	rawValues, err := getField(fields, FieldValues, TypeBytes)
	if err != nil {
		return nil, err
	}
	rawTimestamps, err := getField(fields, FieldTimestamps, TypeBytes)
	if err != nil {
		return nil, err
	}
	// count is untrusted: compare by division, never by product.
	nv, nt := len(rawValues.Value), len(rawTimestamps.Value)
	if nv%width != 0 || uint64(nv/width) != count {
		return nil, fmt.Errorf("%w: values carry %d bytes for %d samples", ErrTruncated, nv, count)
	}
	if nt%8 != 0 || uint64(nt/8) != count {
		return nil, fmt.Errorf("%w: timestamps carry %d bytes for %d samples", ErrTruncated, nt, count)
	}

	values := make([]uint64, count)
	timestamps := make([]int64, count)
	for i := range values {
		values[i] = packed(rawValues.Value[i*width : (i+1)*width])
		timestamps[i] = int64(binary.BigEndian.Uint64(rawTimestamps.Value[i*8 : (i+1)*8]))
	}
	return capture.NewStream(values, timestamps, int(channels), int64(rate))
}

func valueWidth(channels int) int {
	return (channels + 7) / 8
}

func putPacked(dst []byte, v uint64) {
	for i := len(dst) - 1; i >= 0; i-- {
		dst[i] = byte(v)
		v >>= 8
	}
}

func packed(src []byte) uint64 {
	var v uint64
	for _, b := range src {
		v = v<<8 | uint64(b)
	}
	return v
}
