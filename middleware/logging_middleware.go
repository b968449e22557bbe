package middleware

import (
	"context"
	"go.uber.org/zap"
	"machinery/message"
	"time"
)

// LoggingMiddleware logs every call with its duration. Failed calls are
// logged at warn level with the error text.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Reply {
			start := time.Now()
			reply := next(ctx, call)
			fields := []zap.Field{
				zap.String("service", call.ServiceID),
				zap.Duration("duration", time.Since(start)),
			}
			if reply.Err != nil {
				logger.Warn("call failed", append(fields, zap.Error(reply.Err))...)
				return reply
			}
			logger.Debug("call", fields...)
			return reply
		}
	}
}
