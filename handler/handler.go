// Package handler provides adapters to the registry.LocalFunc type for
// functions with other signatures.
//
// Parameters and results may be string or []byte, or a type that
// implements ObjectMarshaler/ObjectUnmarshaler for full control over the
// description string and values exchanged with the object codec.
package handler

import (
	"context"
	"fmt"

	"github.com/bbgo/busybus/object"
	"github.com/bbgo/busybus/registry"
)

// argContextKey is a context key for the original argument object passed
// to a handler.
type argContextKey struct{}

// ContextArg returns the original argument object passed to the handler,
// or nil if ctx has no associated argument. The context passed to a
// handler returned by this package has this value set.
func ContextArg(ctx context.Context) *object.Object {
	if v := ctx.Value(argContextKey{}); v != nil {
		return v.(*object.Object)
	}
	return nil
}

// ObjectMarshaler is implemented by types that know how to encode
// themselves as object values under a description string of their own
// choosing.
type ObjectMarshaler interface {
	MarshalObject() (descr string, values []any, err error)
}

// ObjectUnmarshaler is implemented by types that know how to decode
// themselves from a description string and its parsed values.
type ObjectUnmarshaler interface {
	UnmarshalObject(descr string, values []any) error
}

// ParamResultError adapts a function f that accepts parameters of type P
// and returns a result of type R and an error, to a registry.LocalFunc.
func ParamResultError[P, R any](f func(context.Context, P) (R, error)) registry.LocalFunc {
	return func(arg *object.Object) (*object.Object, error) {
		var p P
		if err := unmarshal(arg, &p); err != nil {
			return nil, err
		}
		ctx := context.WithValue(context.Background(), argContextKey{}, arg)
		r, err := f(ctx, p)
		if err != nil {
			return nil, err
		}
		return marshal(r)
	}
}

// ParamResult adapts a function f that accepts parameters of type P and
// returns a result of type R without error, to a registry.LocalFunc.
func ParamResult[P, R any](f func(context.Context, P) R) registry.LocalFunc {
	return func(arg *object.Object) (*object.Object, error) {
		var p P
		if err := unmarshal(arg, &p); err != nil {
			return nil, err
		}
		ctx := context.WithValue(context.Background(), argContextKey{}, arg)
		return marshal(f(ctx, p))
	}
}

// ParamError adapts a function f that accepts parameters of type P and
// returns an error with no result, to a registry.LocalFunc.
func ParamError[P any](f func(context.Context, P) error) registry.LocalFunc {
	return func(arg *object.Object) (*object.Object, error) {
		var p P
		if err := unmarshal(arg, &p); err != nil {
			return nil, err
		}
		ctx := context.WithValue(context.Background(), argContextKey{}, arg)
		return nil, f(ctx, p)
	}
}

// ResultError adapts a function f that accepts no parameters and returns
// a result of type R and an error, to a registry.LocalFunc.
func ResultError[R any](f func(context.Context) (R, error)) registry.LocalFunc {
	return func(arg *object.Object) (*object.Object, error) {
		ctx := context.WithValue(context.Background(), argContextKey{}, arg)
		r, err := f(ctx)
		if err != nil {
			return nil, err
		}
		return marshal(r)
	}
}

// unmarshal decodes arg into v. The concrete type of v must be a pointer
// to a string or []byte (descr "s" or "Ab" respectively), or must
// implement both ObjectUnmarshaler and ObjectMarshaler, in which case arg
// is parsed with the descr that MarshalObject reports and the values are
// handed to UnmarshalObject.
func unmarshal(arg *object.Object, v any) error {
	switch t := v.(type) {
	case *string:
		vals, err := object.Parse(arg, "s")
		if err != nil {
			return err
		}
		*t = vals[0].(string)
		return nil
	case *[]byte:
		vals, err := object.Parse(arg, "Ab")
		if err != nil {
			return err
		}
		elems := vals[0].([]any)
		buf := make([]byte, len(elems))
		for i, e := range elems {
			buf[i] = e.(byte)
		}
		*t = buf
		return nil
	case ObjectUnmarshaler:
		// The type owns its descr; reuse its own Marshal to recover it
		// when possible, otherwise this adapter cannot proceed.
		descr, _, err := zeroDescr(t)
		if err != nil {
			return err
		}
		vals, err := object.Parse(arg, descr)
		if err != nil {
			return err
		}
		return t.UnmarshalObject(descr, vals)
	default:
		return fmt.Errorf("handler: cannot unmarshal into %T", v)
	}
}

// zeroDescr recovers the description string a zero-valued
// ObjectUnmarshaler would use, by asking it (via ObjectMarshaler, if also
// implemented) or failing with a clear error otherwise.
func zeroDescr(v any) (string, []any, error) {
	if m, ok := v.(ObjectMarshaler); ok {
		return m.MarshalObject()
	}
	return "", nil, fmt.Errorf("handler: %T must implement ObjectMarshaler to be unmarshaled", v)
}

// marshal encodes v into an object. The concrete type of v must be a
// string or []byte, or must implement ObjectMarshaler.
func marshal(v any) (*object.Object, error) {
	switch t := v.(type) {
	case string:
		return object.Build("s", []any{t})
	case []byte:
		elems := make([]any, len(t))
		for i, b := range t {
			elems[i] = b
		}
		return object.Build("Ab", []any{elems})
	case ObjectMarshaler:
		descr, values, err := t.MarshalObject()
		if err != nil {
			return nil, err
		}
		return object.Build(descr, values)
	default:
		return nil, fmt.Errorf("handler: cannot marshal %T", v)
	}
}
