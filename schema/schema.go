// Package schema describes the services and messages a machinery application
// exposes, as produced by the analyzer.
//
// Every service and message lives at a namespace path. A service is addressed
// on the wire by its ServiceID: the namespace segments followed by the service
// name, joined with "::".
//
//	namespace ["api", "greeting"], name "hello"  →  "api::greeting::hello"
package schema

import (
	"strings"
)

// Separator joins namespace segments and the service name in a ServiceID.
const Separator = "::"

// IntrospectionNamespace holds the services a server adds about itself.
// Clients leave it out of the service tree.
const IntrospectionNamespace = "machinery_introspection"

// MessageKind tells whether a message is an enum or a struct.
type MessageKind string

const (
	KindEnum   MessageKind = "enum"
	KindStruct MessageKind = "struct"
)

// Param is one positional parameter of a service.
type Param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ServiceDescriptor describes a single unary service.
type ServiceDescriptor struct {
	Name      string   `json:"name"`
	Namespace []string `json:"namespace"`
	Params    []Param  `json:"params"`
	Returns   string   `json:"returns"`
}

// ID returns the wire address of the service.
func (s *ServiceDescriptor) ID() string {
	return ServiceID(s.Namespace, s.Name)
}

// MessageDescriptor describes an auxiliary type. It carries no runtime behavior.
type MessageDescriptor struct {
	Kind       MessageKind `json:"kind"`
	Name       string      `json:"name"`
	Namespace  []string    `json:"namespace"`
	Definition string      `json:"definition"`
}

// Schema is the analyzer output: services and messages in declaration order.
type Schema struct {
	Services []ServiceDescriptor `json:"services"`
	Messages []MessageDescriptor `json:"messages"`
}

// ServiceID derives the wire address from a namespace path and a name.
func ServiceID(namespace []string, name string) string {
	if len(namespace) == 0 {
		return name
	}
	return strings.Join(namespace, Separator) + Separator + name
}

// ParsePath splits a "::" separated location such as "crate::api::greeting".
// Empty input yields a nil path.
func ParsePath(location string) []string {
	if location == "" {
		return nil
	}
	return strings.Split(location, Separator)
}

// SplitServiceID is the inverse of ServiceID.
func SplitServiceID(id string) (namespace []string, name string) {
	parts := ParsePath(id)
	if len(parts) == 0 {
		return nil, ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// Validate checks that every service has a usable address and that no two
// services share one. Messages are not checked.
func (s *Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Services))
	for i := range s.Services {
		svc := &s.Services[i]
		if err := validateService(svc); err != nil {
			return err
		}
		id := svc.ID()
		if _, dup := seen[id]; dup {
			return &DuplicateServiceError{ServiceID: id}
		}
		seen[id] = struct{}{}
	}
	return nil
}

func validateService(svc *ServiceDescriptor) error {
	id := svc.ID()
	if !validSegment(svc.Name) {
		return &InvalidServiceError{ServiceID: id, Reason: "invalid service name " + quote(svc.Name)}
	}
	if len(svc.Namespace) == 0 {
		return &InvalidServiceError{ServiceID: id, Reason: "empty namespace"}
	}
	for _, seg := range svc.Namespace {
		if !validSegment(seg) {
			return &InvalidServiceError{ServiceID: id, Reason: "invalid namespace segment " + quote(seg)}
		}
	}
	for _, p := range svc.Params {
		if p.Name == "" {
			return &InvalidServiceError{ServiceID: id, Reason: "unnamed parameter"}
		}
	}
	return nil
}

// validSegment rejects any ':' so "a:" + "::" + "b" cannot pass for "a" + "::" + ":b".
func validSegment(seg string) bool {
	return seg != "" && !strings.ContainsRune(seg, ':')
}

func quote(s string) string {
	return `"` + s + `"`
}

// StripPrefix returns a copy of the schema with prefix removed from the front
// of every namespace that starts with it. Descriptors outside the prefix are
// kept unchanged.
func (s *Schema) StripPrefix(prefix ...string) *Schema {
	out := &Schema{
		Services: make([]ServiceDescriptor, len(s.Services)),
		Messages: make([]MessageDescriptor, len(s.Messages)),
	}
	for i, svc := range s.Services {
		svc.Namespace = TrimPrefix(svc.Namespace, prefix)
		svc.Params = append([]Param(nil), svc.Params...)
		out.Services[i] = svc
	}
	for i, msg := range s.Messages {
		msg.Namespace = TrimPrefix(msg.Namespace, prefix)
		out.Messages[i] = msg
	}
	return out
}

// TrimPrefix removes prefix from path when path starts with it. The result
// never aliases path.
func TrimPrefix(path, prefix []string) []string {
	if len(prefix) <= len(path) && HasPrefix(path, prefix) {
		path = path[len(prefix):]
	}
	return append([]string(nil), path...)
}

// HasPrefix reports whether path begins with prefix.
func HasPrefix(path, prefix []string) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if path[i] != prefix[i] {
			return false
		}
	}
	return true
}
