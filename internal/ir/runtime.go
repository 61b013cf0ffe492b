package ir

import "context"

// Call carries one invocation of a native member.
//
// For constructors This is the freshly allocated instance. Args holds the
// argument values in position order; by-ref arguments arrive as Reference values.
type Call struct {
	// Context is the cancellation signal of the invocation that reached
	// this member.
	Context  context.Context
	Invoker  Invoker
	Method   *Method
	This     any
	Args     []any
	TypeArgs []*Type
}

// NativeFunc is a member implementation supplied by the host program.
type NativeFunc func(c *Call) (any, error)

// Invoker calls members on behalf of native code.
type Invoker interface {
	// Invoke calls m without virtual dispatch.
	Invoke(m *Method, this any, args []any) (any, error)
	// InvokeVirtual calls the implementation of m selected by the runtime
	// type of this.
	InvokeVirtual(m *Method, this any, args []any) (any, error)
	// InvokeContext calls m without virtual dispatch, handing ctx to the
	// native members it reaches.
	InvokeContext(ctx context.Context, m *Method, this any, args []any) (any, error)
}

// Reference is the storage a by-reference argument points to.
type Reference interface {
	Load() any
	Store(v any)
}

// Cell is a free-standing Reference.
type Cell struct {
	Value any
}

// Load returns the current value.
func (c *Cell) Load() any { return c.Value }

// Store replaces the current value.
func (c *Cell) Store(v any) { c.Value = v }

// Instance is an object allocated by the runtime. Native members use it to
// reach the fields of their receiver.
type Instance interface {
	RuntimeType() *Type
	Get(f *Field) any
	Set(f *Field, v any)
}
