// Package protocol implements the frame format of the machinery TCP transport.
//
// A fixed 14-byte header precedes a variable-length body, so the reader always
// knows how many bytes belong to the current frame.
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ mch  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
//
// Request bodies hold a codec-encoded message.Call. Response bodies hold the
// JSON envelope as produced by the dispatcher; they are never re-encoded.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Version    byte = 0x01
	HeaderSize int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodyLen bounds a single frame body.
	MaxBodyLen uint32 = 16 << 20
)

// Magic identifies a machinery frame ("mch") and lets the server drop
// connections that speak something else.
var Magic = [3]byte{'m', 'c', 'h'}

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // no body
)

// Codec type constants, mirrored from the codec package to avoid an import cycle.
const (
	CodecTypeJSON byte = 0
	CodecTypeCBOR byte = 1
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrBodyTooLarge       = errors.New("frame body too large")
)

// Header is the fixed part of a frame.
type Header struct {
	CodecType byte
	MsgType   MsgType
	Seq       uint32 // matches a response to its request
	BodyLen   uint32
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], Magic[:])
	buf[3] = Version
	buf[4] = h.CodecType
	buf[5] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	binary.BigEndian.PutUint32(buf[10:14], h.BodyLen)
	return buf
}

func (h *Header) unmarshal(buf []byte) error {
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] {
		return fmt.Errorf("%w: %x", ErrInvalidMagic, buf[0:3])
	}
	if buf[3] != Version {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, buf[3])
	}
	if buf[4] != CodecTypeJSON && buf[4] != CodecTypeCBOR {
		return fmt.Errorf("unsupported codec type: %d", buf[4])
	}
	switch MsgType(buf[5]) {
	case MsgTypeRequest, MsgTypeResponse, MsgTypeHeartbeat:
	default:
		return fmt.Errorf("unsupported message type: %d", buf[5])
	}
	h.CodecType = buf[4]
	h.MsgType = MsgType(buf[5])
	h.Seq = binary.BigEndian.Uint32(buf[6:10])
	h.BodyLen = binary.BigEndian.Uint32(buf[10:14])
	if h.BodyLen > MaxBodyLen {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, h.BodyLen)
	}
	return nil
}

// Encode writes one frame to w. BodyLen is taken from body, not from h.
// Concurrent writers on the same w must serialize calls to Encode.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) > MaxBodyLen {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, len(body))
	}
	hdr := *h
	hdr.BodyLen = uint32(len(body))

	frame := append(hdr.marshal(), body...)
	_, err := w.Write(frame)
	return err
}

// Decode reads one frame from r and validates its header.
func Decode(r io.Reader) (*Header, []byte, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, err
	}

	h := &Header{}
	if err := h.unmarshal(buf); err != nil {
		return nil, nil, err
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
