// Package message defines the call contract shared by client stubs and the
// server dispatcher.
//
// A call is addressed by a ServiceID and carries its arguments as a JSON
// array in declared parameter order. The answer is an envelope holding
// exactly one of "result" or "error":
//
//	request:  api::greeting::hello  ["Laur"]
//	response: {"result": {"message": "Hello, Laur"}}
//	      or: {"error": "Laur is not allowed"}
package message

import (
	"encoding/json"
)

// Call is what a framed transport puts in a request body: the service address
// and the already encoded argument array.
type Call struct {
	ServiceID string          `json:"service"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Envelope is the wire form of a call outcome.
type Envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// defaultFailure replaces an empty error text, which would otherwise read as
// success on the other side.
const defaultFailure = "rpc error"

// Result encodes a successful outcome. A nil value encodes as {"result":null}.
func Result(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Result: raw})
}

// Failure encodes a failed outcome carrying msg verbatim.
func Failure(msg string) []byte {
	if msg == "" {
		msg = defaultFailure
	}
	// Marshalling a struct of a string cannot fail.
	b, _ := json.Marshal(struct {
		Error string `json:"error"`
	}{msg})
	return b
}

// HTTP binding of the call contract.
const (
	HTTPPath      = "/x"
	ServiceHeader = "x-machinery-service"
)
