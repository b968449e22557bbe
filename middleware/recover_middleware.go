package middleware

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"machinery/message"
)

// RecoverMiddleware turns a panic further down the chain into an error reply.
func RecoverMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *message.Call) (reply *message.Reply) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic in call chain",
						zap.String("service", call.ServiceID),
						zap.Any("panic", r),
						zap.Stack("stack"))
					reply = message.Fail(fmt.Errorf("%v", r))
				}
			}()
			return next(ctx, call)
		}
	}
}
