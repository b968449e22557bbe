package client_test

import (
	"context"
	"errors"
	"go.uber.org/zap/zaptest"
	"machinery/client"
	"machinery/codec"
	"machinery/loadbalance"
	"machinery/message"
	"machinery/middleware"
	"machinery/registry"
	"machinery/schema"
	"machinery/server"
	"machinery/transport"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type Greeting struct {
	Message string `json:"message"`
}

var demoSchema = &schema.Schema{Services: []schema.ServiceDescriptor{
	{Name: "hello", Namespace: []string{"api", "greeting"}, Params: []schema.Param{{Name: "name", Type: "String"}}, Returns: "Greeting"},
	{Name: "bye", Namespace: []string{"api", "greeting"}, Params: []schema.Param{{Name: "name", Type: "String"}}, Returns: "Greeting"},
	{Name: "format", Namespace: []string{"greeting"}, Params: []schema.Param{{Name: "message", Type: "String"}, {Name: "input", Type: "Option<String>"}}, Returns: "String"},
	{Name: "say_hi", Namespace: []string{"greeting"}, Returns: "String"},
}}

// newDemoServer serves every demo service except api::greeting::bye.
func newDemoServer(t testing.TB, opts ...server.Option) *server.Server {
	t.Helper()
	d, err := server.NewDispatcher([]server.Registration{
		server.Func("api::greeting", "hello", func(name string) (Greeting, error) {
			if name == "Laur" {
				return Greeting{}, errors.New("Laur is not allowed")
			}
			return Greeting{Message: "Hello, " + name}, nil
		}),
		server.Func("greeting", "format", func(msg string, input *string) (string, error) {
			if input == nil {
				return msg, nil
			}
			return strings.ReplaceAll(msg, "{}", *input), nil
		}),
		server.Func("greeting", "say_hi", func() (string, error) { return "hi", nil }),
	}, opts...)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	svr := server.NewServer(d, opts...)
	svr.Use(middleware.RecoverMiddleware(zaptest.NewLogger(t)))
	svr.Use(middleware.TimeOutMiddleware(time.Second))
	return svr
}

func serveTCP(t testing.TB, svr *server.Server) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go svr.ServeListener(lis)
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return lis.Addr().String()
}

// exerciseDemo runs the demo calls through tr. A discovery transport never
// reaches a server for an unadvertised service, so routed selects whether
// api::greeting::bye fails as a transport fault instead of an envelope.
func exerciseDemo(t *testing.T, tr transport.Transport, routed bool) {
	t.Helper()
	ctx := context.Background()
	c, err := client.New(demoSchema, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	hello, _ := c.Lookup("api", "greeting", "hello")
	got, err := client.Invoke[Greeting](ctx, hello, "Ana")
	if err != nil || got.Message != "Hello, Ana" {
		t.Fatalf("hello: %+v, %v", got, err)
	}

	_, err = hello.Call(ctx, "Laur")
	var remote *message.RemoteError
	if !errors.As(err, &remote) || remote.Message != "Laur is not allowed" {
		t.Fatalf("expect RemoteError(Laur is not allowed), got %v", err)
	}

	_, err = c.Call(ctx, "api.greeting.bye", "Ana")
	if routed {
		var fault *client.TransportFault
		if !errors.As(err, &fault) || !errors.Is(err, loadbalance.ErrNoInstances) {
			t.Fatalf("expect transport fault, got %v", err)
		}
	} else if !errors.As(err, &remote) || remote.Message != "Unknown service: api::greeting::bye" {
		t.Fatalf("expect unknown service, got %v", err)
	}

	format, _ := c.Lookup("greeting", "format")
	if s, err := client.Invoke[string](ctx, format, "Hi {}", "Ana"); err != nil || s != "Hi Ana" {
		t.Fatalf("format: %q, %v", s, err)
	}
	if s, err := client.Invoke[string](ctx, format, "Hi {}"); err != nil || s != "Hi {}" {
		t.Fatalf("format without input: %q, %v", s, err)
	}

	sayHi, _ := c.Lookup("greeting", "say_hi")
	if s, err := client.Invoke[string](ctx, sayHi); err != nil || s != "hi" {
		t.Fatalf("say_hi: %q, %v", s, err)
	}
}

func TestEndToEndTCP(t *testing.T) {
	addr := serveTCP(t, newDemoServer(t))

	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeCBOR} {
		t.Run(ct.String(), func(t *testing.T) {
			tr, err := transport.Dial(context.Background(), addr, ct)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer tr.Close()
			exerciseDemo(t, tr, false)
		})
	}
}

func TestEndToEndHTTP(t *testing.T) {
	ts := httptest.NewServer(newDemoServer(t).HTTPHandler())
	defer ts.Close()

	exerciseDemo(t, transport.NewHTTP(ts.URL, ts.Client()), false)
}

func TestEndToEndDiscovery(t *testing.T) {
	reg := registry.NewStatic()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svr := newDemoServer(t, server.WithRegistry(reg, lis.Addr().String(), 10))
	go svr.ServeListener(lis)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	deadline := time.Now().Add(time.Second)
	for {
		if instances, _ := reg.Discover(context.Background(), "greeting::say_hi"); len(instances) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not advertise")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tr := transport.NewDiscovery(reg, loadbalance.NewConsistentHashBalancer(), transport.WithPoolSize(2))
	defer tr.Close()
	exerciseDemo(t, tr, true)
}

func TestEndToEndEtcd(t *testing.T) {
	reg, err := registry.NewEtcdRegistry([]string{"127.0.0.1:2379"}, time.Second, nil)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	defer reg.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "health"); err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svr := newDemoServer(t, server.WithRegistry(reg, lis.Addr().String(), 10))
	go svr.ServeListener(lis)
	t.Cleanup(func() { svr.Shutdown(time.Second) })

	deadline := time.Now().Add(3 * time.Second)
	for {
		if instances, _ := reg.Discover(context.Background(), "api::greeting::hello"); len(instances) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not advertise")
		}
		time.Sleep(20 * time.Millisecond)
	}

	tr := transport.NewDiscovery(reg, &loadbalance.RoundRobinBalancer{})
	defer tr.Close()
	exerciseDemo(t, tr, true)
}

func BenchmarkSerialCall(b *testing.B) {
	tr, err := transport.Dial(context.Background(), serveTCP(b, newDemoServer(b)), codec.CodecTypeJSON)
	if err != nil {
		b.Fatal(err)
	}
	defer tr.Close()
	c, err := client.New(demoSchema, tr)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Call(ctx, "greeting.format", "Hi {}", "Ana"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkConcurrentCall(b *testing.B) {
	tr, err := transport.Dial(context.Background(), serveTCP(b, newDemoServer(b)), codec.CodecTypeJSON)
	if err != nil {
		b.Fatal(err)
	}
	defer tr.Close()
	c, err := client.New(demoSchema, tr)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Call(ctx, "greeting.format", "Hi {}", "Ana"); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
