// Package protocol implements the request and response frames of mprpc.
//
// A request frame carries a length-prefixed RpcHeader followed by the argument bytes.
// The header records how many argument bytes follow, so a provider can read the
// whole call without any delimiter:
//
//	0          4                     4+headerLen          4+headerLen+argsSize
//	┌──────────┬─────────────────────┬─────────────────────┐
//	│headerLen │   RpcHeader bytes   │    argument bytes    │
//	│ uint32BE │ service,method,size │   argsSize bytes     │
//	└──────────┴─────────────────────┴─────────────────────┘
//
// A response frame is a 4-byte big-endian body length followed by the serialized
// response message. The client reads until the declared length is reached instead of
// trusting a single read to hold the whole message.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"mprpc/message"
)

const (
	LengthSize int = 4 // Size of every length prefix, big-endian (network byte order)

	// DefaultMaxResponseSize is the response ceiling used when none is configured.
	// It matches the legacy single-read buffer (BUFSIZ) so old deployments keep their limit.
	DefaultMaxResponseSize uint32 = 8192

	// DefaultMaxHeaderSize bounds the header length a provider will accept.
	DefaultMaxHeaderSize uint32 = 64 * 1024

	// DefaultMaxArgsSize bounds the argument payload a provider will accept.
	DefaultMaxArgsSize uint32 = 16 * 1024 * 1024
)

var (
	ErrResponseTooLarge = errors.New("protocol: response exceeds maximum size")
	ErrHeaderTooLarge   = errors.New("protocol: header exceeds maximum size")
	ErrArgsSizeMismatch = errors.New("protocol: args size does not match header")
	ErrArgsTooLarge     = errors.New("protocol: args exceed maximum size")
)

// BuildRequest assembles a complete request frame.
// h.ArgsSize is set to len(args); the encoded header length is written in front.
func BuildRequest(h *message.RpcHeader, args []byte) ([]byte, error) {
	size, err := argsSize(uint64(len(args)))
	if err != nil {
		return nil, err
	}
	h.ArgsSize = size

	headerBytes, err := h.Marshal()
	if err != nil {
		return nil, err
	}

	frame := make([]byte, LengthSize+len(headerBytes)+len(args))
	binary.BigEndian.PutUint32(frame[0:LengthSize], uint32(len(headerBytes)))
	copy(frame[LengthSize:], headerBytes)
	copy(frame[LengthSize+len(headerBytes):], args)
	return frame, nil
}

// EncodeRequest writes a complete request frame to w in a single Write,
// so concurrent writers sharing w never interleave partial frames.
func EncodeRequest(w io.Writer, h *message.RpcHeader, args []byte) error {
	frame, err := BuildRequest(h, args)
	if err != nil {
		return err
	}
	return writeFull(w, frame)
}

// argsSize checks that n fits the uint32 args_size field.
func argsSize(n uint64) (uint32, error) {
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes overflow args_size", ErrArgsTooLarge, n)
	}
	return uint32(n), nil
}

// DecodeRequest reads one request frame from r.
// Header lengths above maxHeader and args sizes above maxArgs are rejected before anything
// is allocated; 0 means DefaultMaxHeaderSize and DefaultMaxArgsSize respectively.
func DecodeRequest(r io.Reader, maxHeader, maxArgs uint32) (*message.RpcHeader, []byte, error) {
	if maxHeader == 0 {
		maxHeader = DefaultMaxHeaderSize
	}
	if maxArgs == 0 {
		maxArgs = DefaultMaxArgsSize
	}

	// Step 1: header length prefix
	lenBuf := make([]byte, LengthSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, nil, err
	}
	headerLen := binary.BigEndian.Uint32(lenBuf)
	if headerLen > maxHeader {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrHeaderTooLarge, headerLen, maxHeader)
	}

	// Step 2: exactly headerLen bytes of RpcHeader
	headerBuf := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}
	header := &message.RpcHeader{}
	if err := header.Unmarshal(headerBuf); err != nil {
		return nil, nil, err
	}

	// Step 3: exactly ArgsSize bytes of arguments
	if header.ArgsSize > maxArgs {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrArgsTooLarge, header.ArgsSize, maxArgs)
	}
	args := make([]byte, header.ArgsSize)
	if _, err := io.ReadFull(r, args); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, fmt.Errorf("%w: %v", ErrArgsSizeMismatch, err)
		}
		return nil, nil, err
	}

	return header, args, nil
}

// EncodeResponse writes a length-prefixed response body to w.
func EncodeResponse(w io.Writer, body []byte) error {
	frame := make([]byte, LengthSize+len(body))
	binary.BigEndian.PutUint32(frame[0:LengthSize], uint32(len(body)))
	copy(frame[LengthSize:], body)
	return writeFull(w, frame)
}

// DecodeResponse reads one response frame from r and returns its body.
// A declared length above maxSize fails with ErrResponseTooLarge without reading the body;
// 0 means DefaultMaxResponseSize.
func DecodeResponse(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxResponseSize
	}

	lenBuf := make([]byte, LengthSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf)
	if bodyLen > maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrResponseTooLarge, bodyLen, maxSize)
	}

	// Keep reading until the declared length arrives, however the peer chunks it
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeFull(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return io.ErrShortWrite
	}
	return nil
}
