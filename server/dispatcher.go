package server

import (
	"context"
	"encoding/json"
	"fmt"
	"go.uber.org/zap"
	"machinery/message"
	"machinery/schema"
)

// UnknownServiceError is the outcome of a call whose ServiceID has no handler.
type UnknownServiceError = message.UnknownServiceError

// TooManyArgumentsError rejects a call carrying more arguments than the
// handler declares.
type TooManyArgumentsError struct {
	ServiceID string
	Got       int
	Want      int
}

func (e *TooManyArgumentsError) Error() string {
	return fmt.Sprintf("Too many arguments for %s: got %d, want %d", e.ServiceID, e.Got, e.Want)
}

// PanicError is the outcome of a handler that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

// HandlerFunc serves one service. args holds exactly as many entries as the
// registration declares; trailing arguments the caller left out are nil.
type HandlerFunc func(ctx context.Context, args []json.RawMessage) (any, error)

// Registration binds a handler to a ServiceID. Build one with Handle or Func.
type Registration struct {
	ID      string
	Params  int
	Handler HandlerFunc
	err     error
}

// Handle registers a raw handler taking params positional arguments under
// namespace::name. namespace is a "::" separated path such as "api::greeting".
func Handle(namespace, name string, params int, h HandlerFunc) Registration {
	return Registration{
		ID:      schema.ServiceID(schema.ParsePath(namespace), name),
		Params:  params,
		Handler: h,
	}
}

// Dispatcher routes calls to handlers by exact ServiceID. Its table is fixed
// at construction and safe for concurrent use.
type Dispatcher struct {
	handlers map[string]Registration
	order    []string
	logger   *zap.Logger
}

// NewDispatcher builds the handler table. Registering the same ServiceID
// twice fails with *schema.DuplicateServiceError.
func NewDispatcher(registrations []Registration, opts ...Option) (*Dispatcher, error) {
	o := newOptions(opts)
	if o.introspect != nil {
		reg, err := introspection(o.introspect)
		if err != nil {
			return nil, err
		}
		// Copy so spare capacity in the caller's slice is left alone.
		registrations = append(append([]Registration(nil), registrations...), reg)
	}

	d := &Dispatcher{
		handlers: make(map[string]Registration, len(registrations)),
		logger:   o.logger,
	}
	for _, reg := range registrations {
		if reg.err != nil {
			return nil, fmt.Errorf("register %s: %w", reg.ID, reg.err)
		}
		if reg.Handler == nil {
			return nil, fmt.Errorf("register %s: nil handler", reg.ID)
		}
		if _, ok := d.handlers[reg.ID]; ok {
			return nil, &schema.DuplicateServiceError{ServiceID: reg.ID}
		}
		d.handlers[reg.ID] = reg
		d.order = append(d.order, reg.ID)
	}
	return d, nil
}

// ServiceIDs lists the registered services in registration order.
func (d *Dispatcher) ServiceIDs() []string {
	return append([]string(nil), d.order...)
}

// Dispatch serves one call and returns the response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, serviceID string, args []byte) []byte {
	return d.Handle(ctx, &message.Call{ServiceID: serviceID, Args: args}).Body
}

// Handle serves one call. It has the middleware.HandlerFunc signature and
// never fails at the transport level: every outcome is an envelope.
func (d *Dispatcher) Handle(ctx context.Context, call *message.Call) *message.Reply {
	reg, ok := d.handlers[call.ServiceID]
	if !ok {
		return message.Fail(&UnknownServiceError{ServiceID: call.ServiceID})
	}

	args, err := message.DecodeArgs(call.Args)
	if err != nil {
		return message.Fail(&message.InputError{Err: err})
	}
	if len(args) > reg.Params {
		return message.Fail(&TooManyArgumentsError{ServiceID: reg.ID, Got: len(args), Want: reg.Params})
	}
	if len(args) < reg.Params {
		padded := make([]json.RawMessage, reg.Params)
		copy(padded, args)
		args = padded
	}

	result, err := d.invoke(ctx, reg, args)
	if err != nil {
		return message.Fail(err)
	}
	return message.Succeed(result)
}

func (d *Dispatcher) invoke(ctx context.Context, reg Registration, args []json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("service", reg.ID),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result, err = nil, &PanicError{Value: r}
		}
	}()
	return reg.Handler(ctx, args)
}

func introspection(s *schema.Schema) (Registration, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return Registration{}, fmt.Errorf("encode schema: %w", err)
	}
	doc := json.RawMessage(body)
	return Registration{
		ID:     schema.ServiceID([]string{schema.IntrospectionNamespace}, "schema"),
		Params: 0,
		Handler: func(context.Context, []json.RawMessage) (any, error) {
			return doc, nil
		},
	}, nil
}
