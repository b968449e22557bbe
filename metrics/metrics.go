// Package metrics observes dispatched calls and exports them to Prometheus.
package metrics

import (
	"context"
	"errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"machinery/message"
	"machinery/middleware"
	"net/http"
	"time"
)

type Result string

const (
	ResultOK             Result = "ok"
	ResultError          Result = "error"
	ResultUnknownService Result = "unknown_service"
	ResultBadInput       Result = "bad_input"
	ResultTimeout        Result = "timeout"
	ResultRateLimited    Result = "rate_limited"
)

// Observer receives one event per dispatched call.
type Observer interface {
	Call(serviceID string, result Result, d time.Duration)
}

// Classify maps a reply error to its result label.
func Classify(err error) Result {
	var unknown *message.UnknownServiceError
	var input *message.InputError
	switch {
	case err == nil:
		return ResultOK
	case errors.As(err, &unknown):
		return ResultUnknownService
	case errors.As(err, &input):
		return ResultBadInput
	case errors.Is(err, middleware.ErrTimeout):
		return ResultTimeout
	case errors.Is(err, middleware.ErrRateLimited):
		return ResultRateLimited
	}
	return ResultError
}

// UnknownLabel replaces the service label of calls to services the server
// does not serve.
const UnknownLabel = "unknown"

// Middleware reports every call passing through it to obs. The service label
// is taken from known, usually Dispatcher.ServiceIDs(); any other ID is
// reported as UnknownLabel so callers cannot mint new series. With no known
// IDs, only calls classified as unknown_service are collapsed.
func Middleware(obs Observer, known ...string) middleware.Middleware {
	served := make(map[string]struct{}, len(known))
	for _, id := range known {
		served[id] = struct{}{}
	}
	return func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, call *message.Call) *message.Reply {
			start := time.Now()
			reply := next(ctx, call)
			result := Classify(reply.Err)
			obs.Call(serviceLabel(served, call.ServiceID, result), result, time.Since(start))
			return reply
		}
	}
}

func serviceLabel(served map[string]struct{}, serviceID string, result Result) string {
	if result == ResultUnknownService {
		return UnknownLabel
	}
	if len(served) == 0 {
		return serviceID
	}
	if _, ok := served[serviceID]; ok {
		return serviceID
	}
	return UnknownLabel
}

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// PromObserver exports call metrics to Prometheus.
type PromObserver struct {
	callsTotal  *prometheus.CounterVec
	callLatency *prometheus.HistogramVec
}

// NewPromObserver registers the call metrics on reg.
func NewPromObserver(reg prometheus.Registerer) *PromObserver {
	o := &PromObserver{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "machinery_calls_total",
			Help: "Dispatched calls by service and result.",
		}, []string{"service", "result"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "machinery_call_duration_seconds",
			Help:    "Time from dispatch to encoded reply.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
	}
	reg.MustRegister(o.callsTotal, o.callLatency)
	return o
}

func (o *PromObserver) Call(serviceID string, result Result, d time.Duration) {
	o.callsTotal.WithLabelValues(serviceID, string(result)).Inc()
	o.callLatency.WithLabelValues(serviceID).Observe(d.Seconds())
}
