package main

import (
	"errors"
	"machinery/schema"
	"machinery/server"
	"strings"
)

// Greeting is the result of api::greeting::hello.
type Greeting struct {
	Message string `json:"message"`
}

func hello(name string) (Greeting, error) {
	if name == "Laur" {
		return Greeting{}, errors.New("Laur is not allowed")
	}
	return Greeting{Message: "Hello, " + name}, nil
}

func format(message string, input *string) (string, error) {
	if input == nil {
		return message, nil
	}
	return strings.ReplaceAll(message, "{}", *input), nil
}

func sayHi() (string, error) {
	return "Hi!", nil
}

func greetingServices() []server.Registration {
	return []server.Registration{
		server.Func("api::greeting", "hello", hello),
		server.Func("greeting", "format", format),
		server.Func("greeting", "say_hi", sayHi),
	}
}

// greetingSchema describes greetingServices. It is used when no schema file
// is configured.
func greetingSchema() *schema.Schema {
	return &schema.Schema{
		Services: []schema.ServiceDescriptor{
			{
				Name:      "hello",
				Namespace: []string{"api", "greeting"},
				Params:    []schema.Param{{Name: "name", Type: "String"}},
				Returns:   "Greeting",
			},
			{
				Name:      "format",
				Namespace: []string{"greeting"},
				Params:    []schema.Param{{Name: "message", Type: "String"}, {Name: "input", Type: "Option<String>"}},
				Returns:   "String",
			},
			{Name: "say_hi", Namespace: []string{"greeting"}, Returns: "String"},
		},
		Messages: []schema.MessageDescriptor{
			{
				Kind:       schema.KindStruct,
				Name:       "Greeting",
				Namespace:  []string{"api", "greeting"},
				Definition: "pub struct Greeting { pub message: String }",
			},
		},
	}
}
