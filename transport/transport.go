// Package transport carries encoded calls from client stubs to a dispatcher.
//
// A Transport takes a ServiceID and a JSON argument array and returns the raw
// response envelope. Application failures travel inside the envelope; an
// error from Send always means the call could not be completed.
//
// Three implementations are provided:
//   - ClientTransport: one multiplexed TCP connection speaking protocol frames
//   - Discovery: resolves the ServiceID in a registry, balances across
//     instances and pools ClientTransports per address
//   - HTTP: POST to the HTTP binding with the ServiceID in a header
package transport

import (
	"context"
	"errors"
)

// Transport sends one call and waits for its envelope.
type Transport interface {
	Send(ctx context.Context, serviceID string, args []byte) ([]byte, error)
}

// Func adapts a plain function to Transport.
type Func func(ctx context.Context, serviceID string, args []byte) ([]byte, error)

func (f Func) Send(ctx context.Context, serviceID string, args []byte) ([]byte, error) {
	return f(ctx, serviceID, args)
}

// ErrClosed is returned by Send on a transport that has been closed or whose
// connection broke.
var ErrClosed = errors.New("transport closed")
