package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding: equal values always produce equal
// bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
}

// CBORCodec encodes frame bodies as CBOR. Struct fields are keyed by their
// json tags, so the same types serve both codecs. The argument array inside a
// message.Call travels as a CBOR byte string.
type CBORCodec struct{}

func (c *CBORCodec) Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func (c *CBORCodec) Decode(data []byte, v any) error {
	return cbor.Unmarshal(data, v)
}

func (c *CBORCodec) Type() CodecType {
	return CodecTypeCBOR
}
