package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// ProtoCodec serializes generated protobuf messages. It is the default codec:
// call stubs pass their request message in and a zero response message to fill.
type ProtoCodec struct{}

func (c *ProtoCodec) Encode(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("ProtoCodec: %T is not a proto.Message", v)
	}
	return proto.Marshal(msg)
}

// Decode parses exactly data into v. Embedded zero bytes are part of the message.
func (c *ProtoCodec) Decode(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("ProtoCodec: %T is not a proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

func (c *ProtoCodec) Type() CodecType {
	return CodecTypeProto
}
