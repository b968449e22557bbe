package schema

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func greetingSchema() *Schema {
	return &Schema{
		Services: []ServiceDescriptor{
			{Name: "format", Namespace: []string{"greeting"}, Params: []Param{{"message", "String"}, {"input", "GreetingInput"}}, Returns: "Result<Greeting>"},
			{Name: "say_hi", Namespace: []string{"greeting"}, Returns: "Result<Void>"},
		},
	}
}

func TestServiceID(t *testing.T) {
	cases := []struct {
		namespace []string
		name      string
		want      string
	}{
		{[]string{"api", "greeting"}, "hello", "api::greeting::hello"},
		{[]string{"greeting"}, "say_hi", "greeting::say_hi"},
		{nil, "ping", "ping"},
	}
	for _, tc := range cases {
		if got := ServiceID(tc.namespace, tc.name); got != tc.want {
			t.Errorf("ServiceID(%v, %s) = %s, want %s", tc.namespace, tc.name, got, tc.want)
		}
	}

	ns, name := SplitServiceID("api::greeting::hello")
	if !reflect.DeepEqual(ns, []string{"api", "greeting"}) || name != "hello" {
		t.Fatalf("SplitServiceID: got %v %s", ns, name)
	}
}

func TestValidate(t *testing.T) {
	if err := greetingSchema().Validate(); err != nil {
		t.Fatalf("expect valid schema, got %v", err)
	}

	dup := greetingSchema()
	dup.Services = append(dup.Services, ServiceDescriptor{Name: "say_hi", Namespace: []string{"greeting"}})
	var dupErr *DuplicateServiceError
	if err := dup.Validate(); !errors.As(err, &dupErr) {
		t.Fatalf("expect DuplicateServiceError, got %v", err)
	}
	if dupErr.ServiceID != "greeting::say_hi" {
		t.Fatalf("expect greeting::say_hi, got %s", dupErr.ServiceID)
	}

	// "a:"+"b" and "a"+":b" would both render as a:::b.
	invalid := []ServiceDescriptor{
		{Name: "hello"},
		{Name: "", Namespace: []string{"api"}},
		{Name: "hello", Namespace: []string{"api::v1"}},
		{Name: "hello", Namespace: []string{"api", ""}},
		{Name: "b", Namespace: []string{"a:"}},
		{Name: ":b", Namespace: []string{"a"}},
		{Name: "hello", Namespace: []string{"a:b"}},
		{Name: "hello", Namespace: []string{"api"}, Params: []Param{{Type: "String"}}},
	}
	for _, svc := range invalid {
		s := &Schema{Services: []ServiceDescriptor{svc}}
		var invErr *InvalidServiceError
		if err := s.Validate(); !errors.As(err, &invErr) {
			t.Errorf("service %+v: expect InvalidServiceError, got %v", svc, err)
		}
	}
}

func TestStripPrefix(t *testing.T) {
	s := &Schema{
		Services: []ServiceDescriptor{
			{Name: "hello", Namespace: []string{"crate", "api", "greeting"}},
			{Name: "other", Namespace: []string{"ext"}},
		},
		Messages: []MessageDescriptor{{Kind: KindEnum, Name: "Thing", Namespace: []string{"crate", "api"}}},
	}
	out := s.StripPrefix("crate")

	if got := out.Services[0].ID(); got != "api::greeting::hello" {
		t.Fatalf("expect api::greeting::hello, got %s", got)
	}
	if got := out.Services[1].ID(); got != "ext::other" {
		t.Fatalf("expect ext::other, got %s", got)
	}
	if !reflect.DeepEqual(out.Messages[0].Namespace, []string{"api"}) {
		t.Fatalf("expect message namespace [api], got %v", out.Messages[0].Namespace)
	}
	// original untouched
	if s.Services[0].ID() != "crate::api::greeting::hello" {
		t.Fatalf("StripPrefix mutated its receiver: %s", s.Services[0].ID())
	}
}

const analyzerOutput = `
// written by the analyzer
{
  "services": [
    {
      "name": "format",
      "location": "crate::api::greeting",
      "arguments": ["message: String", "input: GreetingInput"],
      "return_type": "Result < Greeting >",
    },
    {"name": "say_hi", "namespace": ["api", "greeting"], "arguments": [], "return_type": "Result < Void >"},
  ],
  "messages": [
    {"kind": "Enum", "name": "TimeOfDay", "location": "crate::api::greeting", "code": "export type TimeOfDay = \"Morning\";"},
    {"kind": "Struct", "name": "GreetingInput", "location": "crate::api::greeting", "code": "export interface GreetingInput {}"},
  ],
}
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(analyzerOutput))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(s.Services) != 2 || len(s.Messages) != 2 {
		t.Fatalf("expect 2 services and 2 messages, got %d and %d", len(s.Services), len(s.Messages))
	}

	format := s.Services[0]
	if format.ID() != "crate::api::greeting::format" {
		t.Errorf("format id: got %s", format.ID())
	}
	want := []Param{{"message", "String"}, {"input", "GreetingInput"}}
	if !reflect.DeepEqual(format.Params, want) {
		t.Errorf("format params: got %+v, want %+v", format.Params, want)
	}
	if s.Services[1].ID() != "api::greeting::say_hi" {
		t.Errorf("say_hi id: got %s", s.Services[1].ID())
	}
	if s.Messages[0].Kind != KindEnum || s.Messages[1].Kind != KindStruct {
		t.Errorf("message kinds: got %s, %s", s.Messages[0].Kind, s.Messages[1].Kind)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("expect parsed schema to validate, got %v", err)
	}
}

func TestParseUnknownKind(t *testing.T) {
	_, err := Parse([]byte(`{"messages": [{"kind": "Union", "name": "X"}]}`))
	if err == nil {
		t.Fatal("expect error for unknown message kind")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.jsonc")
	if err := os.WriteFile(path, []byte(analyzerOutput), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(s.Services) != 2 {
		t.Fatalf("expect 2 services, got %d", len(s.Services))
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.jsonc")); err == nil {
		t.Fatal("expect error for missing file")
	}
}
