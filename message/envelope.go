package message

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// RemoteError is a failure reported by the server inside an envelope. Message
// is the server's error text, unchanged.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// MalformedEnvelopeError reports a response that is not an envelope.
type MalformedEnvelopeError struct {
	Body []byte
	Err  error
}

func (e *MalformedEnvelopeError) Error() string {
	return fmt.Sprintf("malformed envelope %q: %v", truncate(e.Body, 64), e.Err)
}

func (e *MalformedEnvelopeError) Unwrap() error {
	return e.Err
}

// DecodeEnvelope unwraps a response. A truthy "error" member becomes a
// *RemoteError; otherwise the raw "result" is returned, nil when the service
// returned nothing.
func DecodeEnvelope(data []byte) (json.RawMessage, error) {
	var env struct {
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &MalformedEnvelopeError{Body: data, Err: err}
	}
	if truthy(env.Error) {
		return nil, &RemoteError{Message: errorText(env.Error)}
	}
	if IsAbsent(env.Result) {
		return nil, nil
	}
	return env.Result, nil
}

// truthy mirrors how the envelope's error member has always been tested:
// null, false, 0 and "" do not count as an error.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	switch string(raw) {
	case "", "null", "false", `""`:
		return false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n != 0
	}
	return true
}

func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
