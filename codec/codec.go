// Package codec encodes frame bodies for the framed TCP transport.
//
// The codec only wraps a message.Call on the way in; argument arrays and
// envelopes are always JSON and pass through unchanged.
package codec

import "fmt"

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
	CodecTypeCBOR CodecType = 1
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=JSON, 1=CBOR
}

// GetCodec returns the codec for t, or nil if t is unknown.
func GetCodec(t CodecType) Codec {
	switch t {
	case CodecTypeJSON:
		return &JSONCodec{}
	case CodecTypeCBOR:
		return &CBORCodec{}
	}
	return nil
}

// ParseCodecType maps a config name ("json", "cbor") to its type.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "", "json":
		return CodecTypeJSON, nil
	case "cbor":
		return CodecTypeCBOR, nil
	}
	return 0, fmt.Errorf("codec: unknown codec %q", name)
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeCBOR:
		return "cbor"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}
