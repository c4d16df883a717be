// Package codec provides the serialization capability for call arguments and responses.
//
// The channel never looks inside a payload: it asks a Codec for the bytes of the request
// and hands the bytes of the response back to the same Codec.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeProto  CodecType = 0
	CodecTypeJSON   CodecType = 1
	CodecTypeBinary CodecType = 2
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=Proto, 1=JSON, 2=Binary
}

func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeJSON:
		return &JSONCodec{}
	case CodecTypeBinary:
		return &BinaryCodec{}
	}

	return &ProtoCodec{}
}

// ParseType maps a configuration name ("proto", "json", "binary") to its CodecType.
func ParseType(name string) (CodecType, error) {
	switch name {
	case "", "proto", "protobuf":
		return CodecTypeProto, nil
	case "json":
		return CodecTypeJSON, nil
	case "binary", "raw":
		return CodecTypeBinary, nil
	}
	return 0, fmt.Errorf("codec: unknown codec type %q", name)
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeProto:
		return "proto"
	case CodecTypeJSON:
		return "json"
	case CodecTypeBinary:
		return "binary"
	}
	return fmt.Sprintf("CodecType(%d)", byte(t))
}
