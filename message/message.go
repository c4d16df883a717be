// Package message defines the RPC header that precedes every call's arguments on the wire.
//
// RpcHeader tells the provider which remote operation is being invoked and how many
// argument bytes follow it in the frame. It is encoded with the protobuf wire format so
// it stays byte-compatible with providers built from:
//
//	message RpcHeader {
//	    bytes  service_name = 1;
//	    bytes  method_name  = 2;
//	    uint32 args_size    = 3;
//	}
package message

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of RpcHeader.
const (
	fieldServiceName protowire.Number = 1
	fieldMethodName  protowire.Number = 2
	fieldArgsSize    protowire.Number = 3
)

var (
	ErrEmptyServiceName = errors.New("message: empty service name")
	ErrEmptyMethodName  = errors.New("message: empty method name")
)

// RpcHeader identifies the remote operation of a single call.
// It is built fresh for every call and discarded once the frame is sent.
type RpcHeader struct {
	ServiceName string // e.g. "UserServiceRpc"
	MethodName  string // e.g. "Login"
	ArgsSize    uint32 // Byte length of the argument payload that follows the header
}

// Path returns the registry path of the method, "/<service>/<method>".
func (h *RpcHeader) Path() string {
	return "/" + h.ServiceName + "/" + h.MethodName
}

// Marshal encodes the header. Zero-valued fields are omitted (proto3 semantics),
// so a header with ArgsSize == 0 carries only the two names.
func (h *RpcHeader) Marshal() ([]byte, error) {
	if h.ServiceName == "" {
		return nil, ErrEmptyServiceName
	}
	if h.MethodName == "" {
		return nil, ErrEmptyMethodName
	}

	buf := make([]byte, 0, h.Size())
	buf = protowire.AppendTag(buf, fieldServiceName, protowire.BytesType)
	buf = protowire.AppendString(buf, h.ServiceName)
	buf = protowire.AppendTag(buf, fieldMethodName, protowire.BytesType)
	buf = protowire.AppendString(buf, h.MethodName)
	if h.ArgsSize != 0 {
		buf = protowire.AppendTag(buf, fieldArgsSize, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(h.ArgsSize))
	}
	return buf, nil
}

// Size returns the encoded length of the header in bytes.
func (h *RpcHeader) Size() int {
	n := 0
	if h.ServiceName != "" {
		n += protowire.SizeTag(fieldServiceName) + protowire.SizeBytes(len(h.ServiceName))
	}
	if h.MethodName != "" {
		n += protowire.SizeTag(fieldMethodName) + protowire.SizeBytes(len(h.MethodName))
	}
	if h.ArgsSize != 0 {
		n += protowire.SizeTag(fieldArgsSize) + protowire.SizeVarint(uint64(h.ArgsSize))
	}
	return n
}

// Unmarshal decodes data into h, replacing its previous contents.
// Unknown fields are skipped; truncated or mistyped fields are an error.
func (h *RpcHeader) Unmarshal(data []byte) error {
	*h = RpcHeader{}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("message: bad tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldServiceName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("message: bad service_name: %w", protowire.ParseError(n))
			}
			h.ServiceName = string(v)
			data = data[n:]
		case num == fieldMethodName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("message: bad method_name: %w", protowire.ParseError(n))
			}
			h.MethodName = string(v)
			data = data[n:]
		case num == fieldArgsSize && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return fmt.Errorf("message: bad args_size: %w", protowire.ParseError(n))
			}
			if v > math.MaxUint32 {
				return fmt.Errorf("message: args_size %d overflows uint32", v)
			}
			h.ArgsSize = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("message: bad field %d: %w", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
