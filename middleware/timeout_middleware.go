package middleware

import (
	"context"
	"errors"
	"machinery/message"
	"time"
)

// ErrTimeout is the reply of a call that did not finish in time.
var ErrTimeout = errors.New("request timed out")

// TimeOutMiddleware answers with ErrTimeout when the handler takes longer
// than timeout. The handler's context is cancelled at that point; a handler
// that ignores it keeps running in the background and its reply is dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Reply {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Reply, 1)
			go func() {
				done <- next(ctx, call)
			}()

			select {
			case reply := <-done:
				return reply
			case <-ctx.Done():
				return message.Fail(ErrTimeout)
			}
		}
	}
}
