package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/spf13/pflag"
	"machinery/client"
	"machinery/codec"
	"machinery/loadbalance"
	"machinery/registry"
	"machinery/schema"
	"machinery/transport"
	"os"
	"time"
)

// runCall calls one service and prints its result as JSON. Each argument is
// parsed as JSON and falls back to a plain string.
func runCall(args []string) error {
	var (
		addr       string
		url        string
		etcd       []string
		codecName  string
		balancer   string
		schemaPath string
		basePath   []string
		timeout    time.Duration
	)
	flagSet := pflag.NewFlagSet("machinery-demo call", pflag.ContinueOnError)
	flagSet.StringVar(&addr, "addr", "127.0.0.1:9796", "TCP frame server address")
	flagSet.StringVar(&url, "url", "", "HTTP binding base URL; overrides --addr")
	flagSet.StringSliceVar(&etcd, "etcd", nil, "etcd endpoints; discover the server instead of --addr")
	flagSet.StringVar(&codecName, "codec", "json", "frame codec: json or cbor")
	flagSet.StringVar(&balancer, "balancer", "round_robin", "load balancing with --etcd")
	flagSet.StringVar(&schemaPath, "schema", "", "analyzer output to build stubs from (default: greeting demo)")
	flagSet.StringSliceVar(&basePath, "base-path", nil, "namespace prefix dropped from stub paths")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Second, "call timeout")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flagSet.NArg() < 1 {
		return fmt.Errorf("usage: machinery-demo call [flags] <service.path> [args...]")
	}

	desc := greetingSchema()
	if schemaPath != "" {
		loaded, err := schema.Load(schemaPath)
		if err != nil {
			return err
		}
		desc = loaded
	}

	ct, err := codec.ParseCodecType(codecName)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var tr transport.Transport
	switch {
	case len(etcd) > 0:
		reg, err := registry.NewEtcdRegistry(etcd, timeout, nil)
		if err != nil {
			return err
		}
		defer reg.Close()
		bal, err := loadbalance.New(balancer)
		if err != nil {
			return err
		}
		d := transport.NewDiscovery(reg, bal, transport.WithCodec(ct))
		defer d.Close()
		tr = d
	case url != "":
		tr = transport.NewHTTP(url, nil)
	default:
		t, err := transport.Dial(ctx, addr, ct)
		if err != nil {
			return err
		}
		defer t.Close()
		tr = t
	}

	c, err := client.New(desc, tr, client.WithBasePath(basePath...))
	if err != nil {
		return err
	}

	callArgs := make([]any, 0, flagSet.NArg()-1)
	for _, a := range flagSet.Args()[1:] {
		callArgs = append(callArgs, parseArg(a))
	}
	result, err := c.Call(ctx, flagSet.Arg(0), callArgs...)
	if err != nil {
		return err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	fmt.Fprintln(os.Stdout, string(result))
	return nil
}

func parseArg(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
