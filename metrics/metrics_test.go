package metrics

import (
	"context"
	"errors"
	"fmt"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"machinery/message"
	"machinery/middleware"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Result
	}{
		{nil, ResultOK},
		{&message.UnknownServiceError{ServiceID: "a::b"}, ResultUnknownService},
		{&message.InputError{Err: errors.New("bad json")}, ResultBadInput},
		{middleware.ErrTimeout, ResultTimeout},
		{fmt.Errorf("wrapped: %w", middleware.ErrRateLimited), ResultRateLimited},
		{errors.New("Laur is not allowed"), ResultError},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestPromObserver(t *testing.T) {
	reg := NewRegistry()
	obs := NewPromObserver(reg)

	ok := func(ctx context.Context, call *message.Call) *message.Reply {
		return message.Succeed("hi")
	}
	unknown := func(ctx context.Context, call *message.Call) *message.Reply {
		return message.Fail(&message.UnknownServiceError{ServiceID: call.ServiceID})
	}

	Middleware(obs)(ok)(context.Background(), &message.Call{ServiceID: "greeting::say_hi"})
	Middleware(obs)(ok)(context.Background(), &message.Call{ServiceID: "greeting::say_hi"})
	Middleware(obs)(unknown)(context.Background(), &message.Call{ServiceID: "greeting::bye"})

	if got := testutil.ToFloat64(obs.callsTotal.WithLabelValues("greeting::say_hi", string(ResultOK))); got != 2 {
		t.Fatalf("expect 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(obs.callsTotal.WithLabelValues(UnknownLabel, string(ResultUnknownService))); got != 1 {
		t.Fatalf("expect 1 unknown call, got %v", got)
	}
	if n := testutil.CollectAndCount(obs.callLatency); n != 2 {
		t.Fatalf("expect latency series for 2 services, got %d", n)
	}
}

type recorder struct {
	results []Result
}

func (r *recorder) Call(_ string, result Result, _ time.Duration) {
	r.results = append(r.results, result)
}

func TestMiddlewareReportsTimeouts(t *testing.T) {
	rec := &recorder{}
	slow := func(ctx context.Context, call *message.Call) *message.Reply {
		<-ctx.Done()
		return message.Succeed(nil)
	}
	h := middleware.Chain(Middleware(rec), middleware.TimeOutMiddleware(20*time.Millisecond))(slow)
	h(context.Background(), &message.Call{ServiceID: "slow::op"})

	if len(rec.results) != 1 || rec.results[0] != ResultTimeout {
		t.Fatalf("expect one timeout result, got %v", rec.results)
	}
}

func TestServiceLabelBounded(t *testing.T) {
	reg := NewRegistry()
	obs := NewPromObserver(reg)

	unknown := func(ctx context.Context, call *message.Call) *message.Reply {
		return message.Fail(&message.UnknownServiceError{ServiceID: call.ServiceID})
	}
	limited := func(ctx context.Context, call *message.Call) *message.Reply {
		return message.Fail(middleware.ErrRateLimited)
	}

	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("junk::%d", i)
		Middleware(obs)(unknown)(context.Background(), &message.Call{ServiceID: id})
		Middleware(obs, "greeting::say_hi")(limited)(context.Background(), &message.Call{ServiceID: id})
	}
	Middleware(obs, "greeting::say_hi")(limited)(context.Background(), &message.Call{ServiceID: "greeting::say_hi"})

	if n := testutil.CollectAndCount(obs.callsTotal); n != 3 {
		t.Fatalf("expect 3 series, got %d", n)
	}
	if got := testutil.ToFloat64(obs.callsTotal.WithLabelValues(UnknownLabel, string(ResultRateLimited))); got != 200 {
		t.Fatalf("expect 200 rate limited calls under %q, got %v", UnknownLabel, got)
	}
	if got := testutil.ToFloat64(obs.callsTotal.WithLabelValues("greeting::say_hi", string(ResultRateLimited))); got != 1 {
		t.Fatalf("expect 1 rate limited say_hi call, got %v", got)
	}
}
