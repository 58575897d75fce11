package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// JSONPayload wraps raw JSON bytes as a Payload. Both adapters deliver
// workflow and handler inputs this way so one registration path serves all
// input types.
type JSONPayload []byte

// Decode unmarshals the payload into the pointed-to value. A nil payload
// leaves into untouched.
func (p JSONPayload) Decode(into any) error {
	if len(p) == 0 {
		return nil
	}
	return json.Unmarshal(p, into)
}

// MarshalPayload serializes v into a JSONPayload. The in-memory engine runs
// every input through this so non-serializable inputs fail the same way they
// would against a real backend.
func MarshalPayload(v any) (JSONPayload, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return JSONPayload(b), nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// InvokeHandler calls a handler registered for a signal, query, or update.
// Supported shapes: func(), func(T), func() error, func(T) error,
// func() (R, error), func(T) (R, error). The single argument, when present,
// is decoded from payload.
func InvokeHandler(fn any, payload Payload) (any, error) {
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler is %T, not a function", fn)
	}
	if ft.NumIn() > 1 {
		return nil, fmt.Errorf("handler takes %d arguments, at most one is supported", ft.NumIn())
	}

	var args []reflect.Value
	if ft.NumIn() == 1 {
		argPtr := reflect.New(ft.In(0))
		if payload != nil {
			if err := payload.Decode(argPtr.Interface()); err != nil {
				return nil, fmt.Errorf("decode handler argument: %w", err)
			}
		}
		args = append(args, argPtr.Elem())
	}

	outs := fv.Call(args)
	var result any
	var err error
	for _, out := range outs {
		if out.Type().Implements(errType) {
			if !out.IsNil() {
				err = out.Interface().(error)
			}
			continue
		}
		result = out.Interface()
	}
	return result, err
}

// ValidateHandler checks a handler shape ahead of registration so
// misregistrations fail fast instead of at first delivery.
func ValidateHandler(fn any) error {
	if fn == nil {
		return fmt.Errorf("handler is required")
	}
	ft := reflect.TypeOf(fn)
	if ft.Kind() != reflect.Func {
		return fmt.Errorf("handler is %T, not a function", fn)
	}
	if ft.NumIn() > 1 {
		return fmt.Errorf("handler takes %d arguments, at most one is supported", ft.NumIn())
	}
	if ft.NumOut() > 2 {
		return fmt.Errorf("handler returns %d values, at most two are supported", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errType) {
		return fmt.Errorf("handler's second return value must be error")
	}
	return nil
}

// HandlerArgType returns the handler's argument type, or nil for
// zero-argument handlers. Adapters use it to allocate decode targets.
func HandlerArgType(fn any) reflect.Type {
	ft := reflect.TypeOf(fn)
	if ft.Kind() != reflect.Func || ft.NumIn() == 0 {
		return nil
	}
	return ft.In(0)
}
