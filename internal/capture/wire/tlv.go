package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const fieldHeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("wire: short field header")
	ErrShortFieldValue  = errors.New("wire: short field value")
	ErrFieldType        = errors.New("wire: field type mismatch")
	ErrMissingField     = errors.New("wire: missing field")
)

// Field type ids.
const (
	TypeU32   uint8 = 3
	TypeU64   uint8 = 4
	TypeBytes uint8 = 7
)

// Field is one TLV entry of a container payload.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func U32Field(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64Field(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

func BytesField(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func EncodeFields(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += fieldHeaderLen + len(f.Value)
	}
	out := make([]byte, 0, size)
	for _, f := range fields {
		var head [fieldHeaderLen]byte
		binary.BigEndian.PutUint16(head[0:2], f.ID)
		head[2] = f.Type
		binary.BigEndian.PutUint32(head[3:7], uint32(len(f.Value)))
		out = append(out, head[:]...)
		out = append(out, f.Value...)
	}
	return out
}

func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0, 5)
	i := 0
	for i < len(payload) {
		if len(payload)-i < fieldHeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += fieldHeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, ErrShortFieldValue
		}
		fields = append(fields, Field{ID: id, Type: typeID, Value: payload[i : i+int(l)]})
		i += int(l)
	}
	return fields, nil
}

func getField(fields []Field, id uint16, typ uint8) (Field, error) {
	for _, f := range fields {
		if f.ID != id {
			continue
		}
		if f.Type != typ {
			return Field{}, fmt.Errorf("%w: field %d got %d want %d", ErrFieldType, f.ID, f.Type, typ)
		}
		return f, nil
	}
	return Field{}, fmt.Errorf("%w: %d", ErrMissingField, id)
}

func getU32(fields []Field, id uint16) (uint32, error) {
	f, err := getField(fields, id, TypeU32)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("%w: u32 field %d has %d bytes", ErrShortFieldValue, id, len(f.Value))
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

func getU64(fields []Field, id uint16) (uint64, error) {
	f, err := getField(fields, id, TypeU64)
	if err != nil {
		return 0, err
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("%w: u64 field %d has %d bytes", ErrShortFieldValue, id, len(f.Value))
	}
	return binary.BigEndian.Uint64(f.Value), nil
}
