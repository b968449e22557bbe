package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"machinery/message"
	"machinery/schema"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Func registers a plain Go function as the service namespace::name. fn must
// have the shape
//
//	func([ctx context.Context,] args...) ([R,] error)
//
// Each argument is decoded from its JSON array element; a missing or null
// element leaves the zero value. An invalid fn makes NewDispatcher fail.
func Func(namespace, name string, fn any) Registration {
	reg := Registration{ID: schema.ServiceID(schema.ParsePath(namespace), name)}
	f, err := newFunc(fn)
	if err != nil {
		reg.err = err
		return reg
	}
	reg.Params = len(f.args)
	reg.Handler = f.call
	return reg
}

type funcType struct {
	fn        reflect.Value
	takesCtx  bool
	args      []reflect.Type
	hasResult bool
}

func newFunc(fn any) (*funcType, error) {
	if fn == nil {
		return nil, errors.New("nil function")
	}
	v := reflect.ValueOf(fn)
	typ := v.Type()
	if typ.Kind() != reflect.Func {
		return nil, fmt.Errorf("want a function, got %s", typ.Kind())
	}
	if typ.IsVariadic() {
		return nil, errors.New("variadic functions are not supported")
	}

	f := &funcType{fn: v}
	in := 0
	if typ.NumIn() > 0 && typ.In(0) == contextType {
		f.takesCtx = true
		in = 1
	}
	for ; in < typ.NumIn(); in++ {
		f.args = append(f.args, typ.In(in))
	}

	switch typ.NumOut() {
	case 1:
	case 2:
		f.hasResult = true
	default:
		return nil, fmt.Errorf("want 1 or 2 results, got %d", typ.NumOut())
	}
	if typ.Out(typ.NumOut()-1) != errorType {
		return nil, fmt.Errorf("last result must be error, got %s", typ.Out(typ.NumOut()-1))
	}
	return f, nil
}

func (f *funcType) call(ctx context.Context, args []json.RawMessage) (any, error) {
	in := make([]reflect.Value, 0, len(f.args)+1)
	if f.takesCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	for i, t := range f.args {
		if message.IsAbsent(args[i]) {
			in = append(in, reflect.Zero(t))
			continue
		}
		argv := reflect.New(t)
		if err := json.Unmarshal(args[i], argv.Interface()); err != nil {
			return nil, &message.InputError{Err: fmt.Errorf("argument %d: %w", i, err)}
		}
		in = append(in, argv.Elem())
	}

	out := f.fn.Call(in)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return nil, errv.Interface().(error)
	}
	if !f.hasResult {
		return nil, nil
	}
	return out[0].Interface(), nil
}
