package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x534E4946 // "SNIF"
	Version        uint16 = 1
	FixedHeaderLen uint16 = 20

	KindCapture uint32 = 1
)

var (
	ErrShortHeader        = errors.New("wire: short fixed header")
	ErrInvalidMagic       = errors.New("wire: invalid magic")
	ErrUnsupportedVersion = errors.New("wire: unsupported version")
	ErrInvalidHeaderLen   = errors.New("wire: invalid header length")
	ErrUnexpectedKind     = errors.New("wire: unexpected message kind")
	ErrPayloadTooLarge    = errors.New("wire: payload too large")
	ErrTruncated          = errors.New("wire: truncated data")
)

// Header is the fixed container header.
type Header struct {
	Magic      uint32
	Version    uint16
	HeaderLen  uint16
	Kind       uint32
	PayloadLen uint64
}

// Frame is one complete container message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes: 512 * 1024 * 1024,
	}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Frame{}, ErrUnsupportedVersion
	}
	if h.HeaderLen != FixedHeaderLen {
		return Frame{}, ErrInvalidHeaderLen
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}

	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, ErrTruncated
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	payloadLen := uint64(len(f.Payload))
	if payloadLen > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}

	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.HeaderLen = FixedHeaderLen
	h.PayloadLen = payloadLen

	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if payloadLen > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.HeaderLen)
	binary.BigEndian.PutUint32(buf[8:12], h.Kind)
	binary.BigEndian.PutUint64(buf[12:20], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != int(FixedHeaderLen) {
		return Header{}, fmt.Errorf("wire: invalid fixed header length: %d", len(b))
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		HeaderLen:  binary.BigEndian.Uint16(b[6:8]),
		Kind:       binary.BigEndian.Uint32(b[8:12]),
		PayloadLen: binary.BigEndian.Uint64(b[12:20]),
	}, nil
}

// IsFormatError reports whether err came from a malformed container rather
// than from the underlying reader.
func IsFormatError(err error) bool {
	for _, target := range []error{
		ErrShortHeader, ErrInvalidMagic, ErrUnsupportedVersion, ErrInvalidHeaderLen,
		ErrUnexpectedKind, ErrPayloadTooLarge, ErrTruncated,
		ErrShortFieldHeader, ErrShortFieldValue, ErrFieldType, ErrMissingField,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
