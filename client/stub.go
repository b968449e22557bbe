package client

import (
	"context"
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
	"machinery/message"
	"machinery/schema"
	"machinery/transport"
)

// Stub is the local callable for one remote service.
type Stub struct {
	desc      schema.ServiceDescriptor
	id        string
	transport transport.Transport
	logger    *zap.Logger
}

// ID returns the ServiceID the stub calls.
func (s *Stub) ID() string { return s.id }

// Arity returns the number of declared parameters.
func (s *Stub) Arity() int { return len(s.desc.Params) }

// Descriptor returns the service descriptor the stub was built from.
func (s *Stub) Descriptor() schema.ServiceDescriptor {
	d := s.desc
	d.Namespace = append([]string(nil), d.Namespace...)
	d.Params = append([]schema.Param(nil), d.Params...)
	return d
}

// Call invokes the service with args in declared parameter order and returns
// the raw result. Omitted trailing arguments are sent as null. A failure
// reported by the server is a *message.RemoteError; a failed transport is a
// *TransportFault.
func (s *Stub) Call(ctx context.Context, args ...any) (json.RawMessage, error) {
	if len(args) > len(s.desc.Params) {
		return nil, &ArityError{ServiceID: s.id, Got: len(args), Want: len(s.desc.Params)}
	}
	body, err := message.EncodeArgs(len(s.desc.Params), args)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", s.id, err)
	}

	resp, err := s.transport.Send(ctx, s.id, body)
	if err != nil {
		s.logger.Debug("transport failed", zap.String("service", s.id), zap.Error(err))
		return nil, &TransportFault{ServiceID: s.id, Err: err}
	}
	return message.DecodeEnvelope(resp)
}

// Invoke calls stub and decodes its result into T. A null result leaves the
// zero value of T.
func Invoke[T any](ctx context.Context, stub *Stub, args ...any) (T, error) {
	var out T
	raw, err := stub.Call(ctx, args...)
	if err != nil {
		return out, err
	}
	if message.IsAbsent(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", stub.id, err)
	}
	return out, nil
}
