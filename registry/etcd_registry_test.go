package registry

import (
	"context"
	"testing"
	"time"
)

// newTestEtcd connects to a local etcd or skips the test.
func newTestEtcd(t *testing.T) *EtcdRegistry {
	t.Helper()
	reg, err := NewEtcdRegistry([]string{"127.0.0.1:2379"}, time.Second, nil)
	if err != nil {
		t.Skipf("etcd unavailable: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := reg.Discover(ctx, "health"); err != nil {
		reg.Close()
		t.Skipf("etcd unavailable: %v", err)
	}
	t.Cleanup(func() { reg.Close() })
	return reg
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg := newTestEtcd(t)
	ctx := context.Background()
	const id = "api::greeting::hello"

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0"}

	if err := reg.Register(ctx, id, inst1, 10); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(ctx, id, inst2, 10); err != nil {
		t.Fatal(err)
	}
	defer reg.Deregister(ctx, id, inst2.Addr)

	instances, err := reg.Discover(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %d", len(instances))
	}

	if err := reg.Deregister(ctx, id, inst1.Addr); err != nil {
		t.Fatal(err)
	}

	instances, err = reg.Discover(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(instances) != 1 || instances[0].Addr != inst2.Addr {
		t.Fatalf("expect only %s after deregister, got %+v", inst2.Addr, instances)
	}
}
