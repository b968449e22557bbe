package main

import (
	"context"
	"machinery/client"
	"machinery/server"
	"machinery/transport"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestGreetingSchemaMatchesServices(t *testing.T) {
	d, err := server.NewDispatcher(greetingServices())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	ts := httptest.NewServer(server.NewHTTPHandler(d.Handle, nil))
	defer ts.Close()

	c, err := client.New(greetingSchema(), transport.NewHTTP(ts.URL, ts.Client()))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	for _, path := range c.Services() {
		stub, _ := c.Lookup(strings.Split(path, ".")...)
		args := make([]any, stub.Arity())
		for i := range args {
			args[i] = "Ana"
		}
		if _, err := stub.Call(context.Background(), args...); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
	}
}

func TestParseArg(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{`42`, float64(42)},
		{`"quoted"`, "quoted"},
		{`Ana`, "Ana"},
		{`null`, nil},
		{`{"a":true}`, map[string]any{"a": true}},
		{`Hi {}`, "Hi {}"},
	}
	for _, tt := range tests {
		if got := parseArg(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("parseArg(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
