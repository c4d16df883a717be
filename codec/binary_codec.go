package codec

import (
	"errors"
	"fmt"
)

// BinaryCodec passes already-serialized payloads through untouched.
// Encode accepts []byte or *[]byte, Decode requires *[]byte.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		if b == nil {
			return nil, errors.New("BinaryCodec: nil *[]byte")
		}
		return *b, nil
	}
	return nil, fmt.Errorf("BinaryCodec: v must be []byte or *[]byte, got %T", v)
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	out, ok := v.(*[]byte)
	if !ok || out == nil {
		return fmt.Errorf("BinaryCodec: v must be non-nil *[]byte, got %T", v)
	}

	// Copy so the caller never aliases the transport's read buffer
	*out = make([]byte, len(data))
	copy(*out, data)
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
