// Package middleware wraps the dispatcher's handler with cross-cutting
// behavior. Middlewares compose like an onion:
//
//	Chain(A, B, C)(h) == A(B(C(h)))
//	A.before → B.before → C.before → h → C.after → B.after → A.after
package middleware

import (
	"context"
	"machinery/message"
)

// HandlerFunc turns one call into its reply. It never returns nil.
type HandlerFunc func(ctx context.Context, call *message.Call) *message.Reply

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares; the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
