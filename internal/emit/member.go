package emit

import (
	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

// member is the state shared by method and constructor emitters: the
// signature under construction and the body being built.
type member struct {
	te   *TypeEmitter
	sig  ir.Signature
	body *lower.Body
}

// DefineParameter appends a parameter at the next position.
func (m *member) DefineParameter(t *ir.Type, dir ir.Direction, name string) *ir.Parameter {
	return m.sig.DefineParameter(t, dir, name)
}

// DefineParameterFrom appends a copy of an existing parameter, including its
// direction, default value and metadata.
func (m *member) DefineParameterFrom(p *ir.Parameter) *ir.Parameter {
	return m.sig.DefineParameterFrom(p)
}

// Parameters returns the declared parameters in position order.
func (m *member) Parameters() []*ir.Parameter { return m.sig.Parameters() }

// Append adds statements to the body.
func (m *member) Append(stmts ...expr.Node) error {
	if m.te.finalized {
		return ir.NewBodySealed(m.te.t.Key())
	}
	return m.body.Append(stmts...)
}

// Declare reserves local slots for vars ahead of first use.
func (m *member) Declare(vars ...*expr.Variable) error {
	if m.te.finalized {
		return ir.NewBodySealed(m.te.t.Key())
	}
	return m.body.Declare(vars...)
}

// Body returns the underlying body.
func (m *member) Body() *lower.Body { return m.body }

// This returns a reference to the instance under construction.
func (m *member) This() *expr.ThisExpr { return expr.This(m.te.t) }

// MethodEmitter builds one method of a type.
type MethodEmitter struct {
	member
	method *ir.Method
}

// Method returns the method handle. The handle is stable; its parameter list
// reflects the parameters declared so far, so other bodies may call it
// before the type is finalized.
func (m *MethodEmitter) Method() *ir.Method {
	if m.te.finalized {
		return m.method
	}
	m.method.Params = m.sig.Freeze()
	return m.method
}

// RuntimeProvided reports whether the platform supplies the implementation.
func (m *MethodEmitter) RuntimeProvided() bool {
	return m.method.Attributes.Has(ir.MethodRuntimeProvided)
}

// Emit lowers the body and installs it as the method's implementation. It is
// a no-op for runtime-provided and abstract methods, which have no body.
func (m *MethodEmitter) Emit() (*lower.EmittedMember, error) {
	method := m.Method()
	if m.RuntimeProvided() || method.Attributes.Has(ir.MethodAbstract) {
		return nil, nil
	}
	if em := m.body.Emitted(); em != nil {
		return em, nil
	}
	em, err := m.body.Seal(lower.Member{
		Key:       method.Key(),
		Declaring: m.te.t,
		Params:    method.Params,
		Return:    method.Return,
		Static:    method.IsStatic(),
	})
	if err != nil {
		return nil, err
	}
	method.Impl = em
	m.te.logger.Debug("member emitted", "member", method.Key(), "instructions", len(em.Code), "fingerprint", em.Fingerprint())
	return em, nil
}

// ConstructorEmitter builds one constructor of a type.
type ConstructorEmitter struct {
	member
	ctor     *ir.Constructor
	siblings []*ConstructorEmitter
}

// Constructor returns the constructor handle, with the parameters declared
// so far.
func (c *ConstructorEmitter) Constructor() *ir.Constructor {
	if c.te.finalized {
		return c.ctor
	}
	c.ctor.Params = c.sig.Freeze()
	return c.ctor
}

// SetAttributes replaces the constructor's attributes. A runtime-provided
// constructor is never given a body.
func (c *ConstructorEmitter) SetAttributes(attrs ir.MethodAttributes) error {
	if c.te.finalized {
		return ir.NewBodySealed(c.ctor.Key())
	}
	c.ctor.Attributes = attrs
	return nil
}

// RuntimeProvided reports whether the platform supplies the implementation.
func (c *ConstructorEmitter) RuntimeProvided() bool {
	return c.ctor.Attributes.Has(ir.MethodRuntimeProvided)
}

// InvokeBaseConstructor appends a call to the parameterless base constructor.
func (c *ConstructorEmitter) InvokeBaseConstructor() error {
	base, err := baseConstructor(c.te.t.Base)
	if err != nil {
		return err
	}
	return c.InvokeBaseConstructorWith(base)
}

// InvokeBaseConstructorWith appends a call to the base constructor ctor.
func (c *ConstructorEmitter) InvokeBaseConstructorWith(ctor *ir.Constructor, args ...expr.Node) error {
	call, err := expr.Init(expr.This(ctor.Declaring), ctor, args...)
	if err != nil {
		return err
	}
	return c.Append(call)
}

// InvokeSibling appends a call to another constructor of the same type and
// records the dependency, so the sibling is emitted first.
func (c *ConstructorEmitter) InvokeSibling(other *ConstructorEmitter, args ...expr.Node) error {
	if other.te != c.te {
		return ir.NewInvalidTarget("sibling constructor belongs to another type")
	}
	call, err := expr.Init(c.This(), other.Constructor(), args...)
	if err != nil {
		return err
	}
	if err := c.Append(call); err != nil {
		return err
	}
	c.siblings = append(c.siblings, other)
	return nil
}

// Emit lowers the body and installs it as the constructor's implementation.
// An empty body first gets a call to the parameterless base constructor.
// Runtime-provided constructors are left without a body.
func (c *ConstructorEmitter) Emit() (*lower.EmittedMember, error) {
	ctor := c.Constructor()
	if c.RuntimeProvided() {
		return nil, nil
	}
	if em := c.body.Emitted(); em != nil {
		return em, nil
	}
	if c.body.Len() == 0 && c.te.t.Base != nil {
		base, err := baseConstructor(c.te.t.Base)
		if err != nil {
			return nil, err
		}
		call, err := expr.Init(expr.This(base.Declaring), base)
		if err != nil {
			return nil, err
		}
		if err := c.body.Append(call); err != nil {
			return nil, err
		}
	}
	em, err := c.body.Seal(lower.Member{
		Key:       ctor.Key(),
		Declaring: c.te.t,
		Params:    ctor.Params,
		Return:    ir.Void,
	})
	if err != nil {
		return nil, err
	}
	ctor.Impl = em
	c.te.logger.Debug("member emitted", "member", ctor.Key(), "instructions", len(em.Code), "fingerprint", em.Fingerprint())
	return em, nil
}

// baseConstructor finds the accessible parameterless constructor of base. A
// base constructed over unresolved generic parameters is looked up on its
// generic definition.
func baseConstructor(base *ir.Type) (*ir.Constructor, error) {
	lookup := base
	if base.Definition != nil && base.ContainsGenericParams() {
		lookup = base.Definition
	}
	for _, c := range lookup.Constructors {
		if len(c.Params) == 0 && !c.Private {
			return c, nil
		}
	}
	return nil, ir.NewBaseCtorNotFound(base)
}
