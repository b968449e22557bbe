package config

import (
	"machinery/codec"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9796" || cfg.Timeout != 30*time.Second || cfg.Log.Level != "info" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.CodecType() != codec.CodecTypeJSON {
		t.Fatalf("expect json codec, got %s", cfg.CodecType())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "machinery.yaml")
	data := `
listen_address: ":9000"
advertise_address: "10.0.0.7:9000"
codec: cbor
balancer: consistent_hash
timeout: 2s
etcd:
  endpoints: ["127.0.0.1:2379"]
  lease_ttl: 15
rate_limit:
  rate: 100
  burst: 20
metrics:
  address: ":9100"
log:
  level: debug
  development: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CodecType() != codec.CodecTypeCBOR {
		t.Fatalf("expect cbor, got %s", cfg.CodecType())
	}
	if cfg.Timeout != 2*time.Second || cfg.Etcd.LeaseTTL != 15 || cfg.RateLimit.Burst != 20 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Advertise() != "10.0.0.7:9000" {
		t.Fatalf("unexpected advertise address %q", cfg.Advertise())
	}
	// Keys absent from the file keep their defaults.
	if cfg.HTTPAddress != "127.0.0.1:9797" || cfg.Etcd.DialTimeout != 5*time.Second {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expect error for a missing file")
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"unknown key", "listen_adress: x", "listen_adress"},
		{"unknown codec", "codec: xml", "unknown codec"},
		{"unknown balancer", "balancer: random", "unknown strategy"},
		{"no listener", "listen_address: ''\nhttp_address: ''", "required"},
		{"burst without rate", "rate_limit: {rate: 5}", "burst"},
		{"etcd without advertise", "listen_address: ''\netcd: {endpoints: [a]}", "advertise_address"},
		{"bad level", "log: {level: loud}", "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expect error containing %q, got %v", tt.want, err)
			}
		})
	}
}
