package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeArgs encodes args as a positional JSON array of length params.
// Missing trailing arguments and nil values are written as null so the
// receiver sees a sequence of stable length. Extra arguments are kept; arity
// is checked by the caller.
func EncodeArgs(params int, args []any) ([]byte, error) {
	seq := make([]any, max(params, len(args)))
	copy(seq, args)
	b, err := json.Marshal(seq)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}
	return b, nil
}

// DecodeArgs splits a JSON array into its raw elements. An empty body is an
// empty argument list.
func DecodeArgs(body []byte) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(body, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// IsAbsent reports whether a decoded argument was omitted or null.
func IsAbsent(arg json.RawMessage) bool {
	trimmed := bytes.TrimSpace(arg)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
