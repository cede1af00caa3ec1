package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"

	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/testutil/testlog"
)

func mustStream(t *testing.T, values []uint64, timestamps []int64, channels int) *capture.Stream {
	t.Helper()
	s, err := capture.NewStream(values, timestamps, channels, 1_000_000)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	return s
}

func TestEncodeDecodeStable(t *testing.T) {
	testlog.Start(t)
	s := mustStream(t, []uint64{0x0, 0x1ff, 0x155, 0x2a}, []int64{0, 3, 3, 1 << 40}, 10)

	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := Decode(bytes.NewReader(buf.Bytes()), DefaultLimits())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded.Values(), s.Values()) {
		t.Fatalf("values mismatch: %v", decoded.Values())
	}
	if !reflect.DeepEqual(decoded.Timestamps(), s.Timestamps()) {
		t.Fatalf("timestamps mismatch: %v", decoded.Timestamps())
	}
	if decoded.Channels() != 10 || decoded.Rate() != 1_000_000 {
		t.Fatalf("unexpected header data: channels=%d rate=%d", decoded.Channels(), decoded.Rate())
	}

	var again bytes.Buffer
	if err := Encode(&again, decoded); err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), again.Bytes()) {
		t.Fatalf("re-encoded bytes differ")
	}
}

func TestEncodePacksValuesByChannelWidth(t *testing.T) {
	testlog.Start(t)
	s := mustStream(t, []uint64{0xab, 0xcd}, []int64{0, 1}, 8)

	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := ReadFrame(bytes.NewReader(buf.Bytes()), DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	fields, err := DecodeFields(f.Payload)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	values, err := getField(fields, FieldValues, TypeBytes)
	if err != nil {
		t.Fatalf("values field: %v", err)
	}
	if !bytes.Equal(values.Value, []byte{0xab, 0xcd}) {
		t.Fatalf("unexpected packed values: %x", values.Value)
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	testlog.Start(t)
	s := mustStream(t, []uint64{1}, []int64{0}, 1)
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := buf.Bytes()
	binary.BigEndian.PutUint32(b[0:4], 0xdeadbeef)
	if _, err := Decode(bytes.NewReader(b), DefaultLimits()); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	testlog.Start(t)
	s := mustStream(t, []uint64{1, 0, 1}, []int64{0, 1, 2}, 1)
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	b := buf.Bytes()
	if _, err := Decode(bytes.NewReader(b[:len(b)-3]), DefaultLimits()); !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	if _, err := Decode(bytes.NewReader(b[:5]), DefaultLimits()); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestDecodePayloadLimit(t *testing.T) {
	testlog.Start(t)
	s := mustStream(t, []uint64{1, 0, 1}, []int64{0, 1, 2}, 1)
	var buf bytes.Buffer
	if err := Encode(&buf, s); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Decode(bytes.NewReader(buf.Bytes()), Limits{MaxPayloadBytes: 8}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestDecodeMissingField(t *testing.T) {
	testlog.Start(t)
	payload := EncodeFields([]Field{U32Field(FieldChannels, 1)})
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Header: Header{Kind: KindCapture}, Payload: payload}, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := Decode(bytes.NewReader(buf.Bytes()), DefaultLimits()); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestDecodeRejectsForgedSampleCount(t *testing.T) {
	testlog.Start(t)
	cases := map[string]struct {
		channels uint32
		count    uint64
		values   []byte
		stamps   []byte
	}{
		"wrapping count, 64 channels": {channels: 64, count: 1 << 61},
		"wrapping count, 8 channels":  {channels: 8, count: 1 << 63},
		"count above data":            {channels: 1, count: 3, values: []byte{1, 0}, stamps: make([]byte, 16)},
		"ragged values":               {channels: 16, count: 1, values: []byte{1, 2, 3}, stamps: make([]byte, 8)},
		"ragged timestamps":           {channels: 1, count: 1, values: []byte{1}, stamps: make([]byte, 9)},
	}
	for name, tc := range cases {
		payload := EncodeFields([]Field{
			U32Field(FieldChannels, tc.channels),
			U64Field(FieldRate, 1000),
			U64Field(FieldCount, tc.count),
			BytesField(FieldValues, tc.values),
			BytesField(FieldTimestamps, tc.stamps),
		})
		var buf bytes.Buffer
		if err := WriteFrame(&buf, Frame{Header: Header{Kind: KindCapture}, Payload: payload}, DefaultLimits()); err != nil {
			t.Fatalf("%s: write frame: %v", name, err)
		}
		_, err := Decode(bytes.NewReader(buf.Bytes()), DefaultLimits())
		if !errors.Is(err, ErrTruncated) || !IsFormatError(err) {
			t.Fatalf("%s: expected ErrTruncated format error, got %v", name, err)
		}
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Frame{Header: Header{Kind: 42}}, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if _, err := Decode(bytes.NewReader(buf.Bytes()), DefaultLimits()); !errors.Is(err, ErrUnexpectedKind) {
		t.Fatalf("expected ErrUnexpectedKind, got %v", err)
	}
}

func TestDecodeFieldsShortHeader(t *testing.T) {
	testlog.Start(t)
	if _, err := DecodeFields([]byte{0, 1, 3}); !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
	bad := EncodeFields([]Field{BytesField(9, []byte{1, 2, 3})})
	if _, err := DecodeFields(bad[:len(bad)-1]); !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestIsFormatError(t *testing.T) {
	testlog.Start(t)
	_, err := Decode(bytes.NewReader([]byte{0x00, 0x01}), DefaultLimits())
	if !IsFormatError(err) {
		t.Fatalf("expected format error, got %v", err)
	}
	if IsFormatError(io.ErrClosedPipe) {
		t.Fatalf("reader errors are not format errors")
	}
}
