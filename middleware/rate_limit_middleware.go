package middleware

import (
	"context"
	"errors"
	"golang.org/x/time/rate"
	"machinery/message"
)

// ErrRateLimited is the reply of a call rejected by RateLimitMiddleware.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitMiddleware admits calls through a token bucket of r tokens per
// second and the given burst. Excess calls fail without reaching the handler.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Reply {
			if !limiter.Allow() {
				return message.Fail(ErrRateLimited)
			}
			return next(ctx, call)
		}
	}
}
