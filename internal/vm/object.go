package vm

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Object is an instance of a class allocated by the machine.
type Object struct {
	Type   *ir.Type
	fields map[string]any
	cause  error // Go error an exception object was raised from
}

// NewObject allocates an instance of t with every field, inherited ones
// included, set to its zero value.
func NewObject(t *ir.Type) *Object {
	o := &Object{Type: t, fields: make(map[string]any)}
	for cur := t; cur != nil; cur = cur.Base {
		for _, f := range cur.Fields {
			if f.Static {
				continue
			}
			k := fieldKey(f)
			if _, ok := o.fields[k]; !ok {
				o.fields[k] = ir.Zero(f.Type)
			}
		}
	}
	return o
}

// RuntimeType returns the type the object was allocated as.
func (o *Object) RuntimeType() *ir.Type { return o.Type }

// Get returns the value of f.
func (o *Object) Get(f *ir.Field) any { return o.fields[fieldKey(f)] }

// Set stores v into f.
func (o *Object) Set(f *ir.Field, v any) { o.fields[fieldKey(f)] = v }

func (o *Object) String() string { return fmt.Sprintf("%s@%p", o.Type.Key(), o) }

// fieldKey identifies a field across generic instantiations of its
// declaring type.
func fieldKey(f *ir.Field) string {
	decl := f.Declaring
	if decl.Definition != nil {
		decl = decl.Definition
	}
	return decl.Name + "::" + f.Name
}

// Array is a one-dimensional array. Items is shared by every reference to
// the array.
type Array struct {
	Elem  *ir.Type
	Items []any
}

// NewArray allocates an array of n zero elements.
func NewArray(elem *ir.Type, n int) *Array {
	items := make([]any, n)
	z := ir.Zero(elem)
	for i := range items {
		items[i] = z
	}
	return &Array{Elem: elem, Items: items}
}

// RuntimeType returns the array type.
func (a *Array) RuntimeType() *ir.Type { return ir.ArrayOf(a.Elem) }

// Exception is the Go error form of an exception object that escaped the
// machine.
type Exception struct {
	Object *Object
}

// Message returns the exception message.
func (e *Exception) Message() string {
	if f, err := e.Object.Type.Field("Message"); err == nil {
		if s, ok := e.Object.Get(f).(string); ok {
			return s
		}
	}
	return ""
}

func (e *Exception) Error() string {
	return fmt.Sprintf("%s: %s", e.Object.Type.Key(), e.Message())
}

// Unwrap returns the Go error the exception was raised from, if any.
func (e *Exception) Unwrap() error { return e.Object.cause }

// NewException allocates an exception object of type t (which must derive
// from ir.Exception) with the given message.
func NewException(t *ir.Type, message string) *Object {
	o := NewObject(t)
	if f, err := t.Field("Message"); err == nil {
		o.Set(f, message)
	}
	return o
}

// exceptionOf converts a Go error into the exception object to raise.
func exceptionOf(err error) *Object {
	if e, ok := err.(*Exception); ok {
		return e.Object
	}
	o := NewException(ir.Exception, err.Error())
	o.cause = err
	return o
}

// errorOf converts an escaping exception object into the Go error returned
// to native callers. An exception raised from a Go error surfaces as that
// error, unchanged.
func errorOf(o *Object) error {
	if o.cause != nil {
		return o.cause
	}
	return &Exception{Object: o}
}

// Refs. Each is the storage behind a by-reference argument.

type localRef struct {
	f    *frame
	slot int
}

func (r localRef) Load() any { return r.f.locals[r.slot] }
func (r localRef) Store(v any) { r.f.locals[r.slot] = v }

type argRef struct {
	f   *frame
	pos int
}

func (r argRef) Load() any { return r.f.args[r.pos-1] }
func (r argRef) Store(v any) { r.f.args[r.pos-1] = v }

type fieldRef struct {
	o *Object
	f *ir.Field
}

func (r fieldRef) Load() any { return r.o.Get(r.f) }
func (r fieldRef) Store(v any) { r.o.Set(r.f, v) }

type staticRef struct {
	m   *Machine
	key string
}

func (r staticRef) Load() any { return r.m.statics[r.key] }
func (r staticRef) Store(v any) { r.m.statics[r.key] = v }

type elemRef struct {
	a *Array
	i int
}

func (r elemRef) Load() any { return r.a.Items[r.i] }
func (r elemRef) Store(v any) { r.a.Items[r.i] = v }
