package vm

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/lower"
)

type frame struct {
	em     *lower.EmittedMember
	this   any
	args   []any
	locals []any
	stack  []any
	subst  map[*ir.Type]*ir.Type
}

func newFrame(em *lower.EmittedMember, this any, args []any, subst map[*ir.Type]*ir.Type) *frame {
	f := &frame{
		em:     em,
		this:   this,
		args:   append([]any(nil), args...),
		locals: make([]any, len(em.Locals)),
		subst:  subst,
	}
	for i, l := range em.Locals {
		f.locals[i] = ir.Zero(f.resolve(l.Type))
	}
	return f
}

func (f *frame) resolve(t *ir.Type) *ir.Type { return ir.Substitute(t, f.subst) }

func (f *frame) push(v any) { f.stack = append(f.stack, v) }

func (f *frame) pop() any {
	v := f.stack[len(f.stack)-1]
	f.stack[len(f.stack)-1] = nil
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) popN(n int) []any {
	out := make([]any, n)
	copy(out, f.stack[len(f.stack)-n:])
	for i := len(f.stack) - n; i < len(f.stack); i++ {
		f.stack[i] = nil
	}
	f.stack = f.stack[:len(f.stack)-n]
	return out
}

// exitKind tells how a run of instructions ended.
type exitKind int

const (
	exitRet exitKind = iota
	exitEndFinally
)

// exec runs a whole member body.
func (m *Machine) exec(f *frame) (any, *Object) {
	v, _, exc := m.run(f, 0, 0, len(f.em.Code))
	return v, exc
}

// run executes from pc until a ret, or until the endfinally of the handler
// being run. Only regions nested within [lo, hi) are handled here; any other
// exception is returned to the enclosing run.
func (m *Machine) run(f *frame, pc, lo, hi int) (any, exitKind, *Object) {
	code := f.em.Code
	for {
		in := code[pc]
		next := pc + 1
		var exc *Object

		switch in.Op {
		case lower.Nop:
		case lower.Ldc:
			f.push(in.Value)
		case lower.LdNull:
			f.push(nil)
		case lower.LdDefault:
			f.push(ir.Zero(f.resolve(in.Type)))
		case lower.LdThis:
			f.push(f.this)

		case lower.LdArg:
			f.push(f.args[in.Index-1])
		case lower.LdArgA:
			f.push(argRef{f: f, pos: in.Index})
		case lower.StArg:
			f.args[in.Index-1] = f.pop()
		case lower.LdLoc:
			f.push(f.locals[in.Index])
		case lower.LdLocA:
			f.push(localRef{f: f, slot: in.Index})
		case lower.StLoc:
			f.locals[in.Index] = f.pop()

		case lower.LdFld, lower.LdFldA:
			obj, e := asObject(f.pop(), in.Field)
			if e != nil {
				exc = e
				break
			}
			if in.Op == lower.LdFld {
				f.push(obj.Get(in.Field))
			} else {
				f.push(fieldRef{o: obj, f: in.Field})
			}
		case lower.StFld:
			v := f.pop()
			obj, e := asObject(f.pop(), in.Field)
			if e != nil {
				exc = e
				break
			}
			obj.Set(in.Field, v)
		case lower.LdSFld:
			f.push(m.statics[fieldKey(in.Field)])
		case lower.LdSFldA:
			f.push(staticRef{m: m, key: fieldKey(in.Field)})
		case lower.StSFld:
			m.statics[fieldKey(in.Field)] = f.pop()

		case lower.LdInd:
			r, ok := f.pop().(ir.Reference)
			if !ok {
				exc = NewException(ir.Exception, "ldind on a non-reference")
				break
			}
			f.push(r.Load())
		case lower.StInd:
			v := f.pop()
			r, ok := f.pop().(ir.Reference)
			if !ok {
				exc = NewException(ir.Exception, "stind on a non-reference")
				break
			}
			r.Store(v)

		case lower.Call, lower.CallVirt:
			exc = m.callInstruction(f, in)
		case lower.NewObj:
			args := f.popN(len(in.Ctor.Params))
			obj, e := m.construct(m.closeCtor(f, in.Ctor), args)
			if e != nil {
				exc = e
				break
			}
			f.push(obj)

		case lower.NewArr:
			n := f.pop().(int64)
			if n < 0 {
				exc = NewException(ir.Exception, fmt.Sprintf("negative array length %d", n))
				break
			}
			f.push(NewArray(f.resolve(in.Type), int(n)))
		case lower.LdElem, lower.LdElemA:
			idx := f.pop().(int64)
			arr, e := asArray(f.pop(), idx)
			if e != nil {
				exc = e
				break
			}
			if in.Op == lower.LdElem {
				f.push(arr.Items[idx])
			} else {
				f.push(elemRef{a: arr, i: int(idx)})
			}
		case lower.StElem:
			v := f.pop()
			idx := f.pop().(int64)
			arr, e := asArray(f.pop(), idx)
			if e != nil {
				exc = e
				break
			}
			arr.Items[idx] = v
		case lower.LdLen:
			arr, ok := f.pop().(*Array)
			if !ok || arr == nil {
				exc = NewException(ir.Exception, "null reference reading array length")
				break
			}
			f.push(int64(len(arr.Items)))

		case lower.Box:
		case lower.Cast:
			v := f.pop()
			t := f.resolve(in.Type)
			if !InstanceOf(v, t) {
				exc = NewException(ir.Exception, fmt.Sprintf("cannot cast %s to %s", describe(v), t.Key()))
				break
			}
			f.push(v)
		case lower.ConvInt:
			f.push(int64(f.pop().(float64)))
		case lower.ConvFloat:
			f.push(float64(f.pop().(int64)))

		case lower.Add, lower.Sub, lower.Mul, lower.Div, lower.Rem:
			b, a := f.pop(), f.pop()
			v, e := arith(in.Op, a, b)
			if e != nil {
				exc = e
				break
			}
			f.push(v)
		case lower.Ceq, lower.Cne, lower.Clt, lower.Cle, lower.Cgt, lower.Cge:
			b, a := f.pop(), f.pop()
			f.push(compare(in.Op, a, b))
		case lower.Not:
			f.push(!f.pop().(bool))
		case lower.Neg:
			switch v := f.pop().(type) {
			case int64:
				f.push(-v)
			case float64:
				f.push(-v)
			}

		case lower.Br:
			next = f.em.Target(in)
		case lower.BrFalse:
			if !f.pop().(bool) {
				next = f.em.Target(in)
			}
		case lower.BrTrue:
			if f.pop().(bool) {
				next = f.em.Target(in)
			}
		case lower.Leave:
			f.stack = f.stack[:0]
			target := f.em.Target(in)
			var failedAt int
			exc, failedAt = m.runFinallies(f, pc, target, lo, hi)
			if exc != nil {
				resume, e := m.handle(f, exc, pc, failedAt+1, lo, hi)
				if e != nil {
					return nil, exitRet, e
				}
				next = resume
				exc = nil
				break
			}
			next = target
		case lower.EndFinally:
			return nil, exitEndFinally, nil
		case lower.Throw:
			v := f.pop()
			obj, ok := v.(*Object)
			if !ok || obj == nil {
				exc = NewException(ir.Exception, "null reference thrown")
				break
			}
			exc = obj
		case lower.Ret:
			if f.em.Member.Return != nil && f.em.Member.Return.Kind != ir.KindVoid {
				return f.pop(), exitRet, nil
			}
			return nil, exitRet, nil

		case lower.Pop:
			f.pop()
		case lower.Dup:
			v := f.pop()
			f.push(v)
			f.push(v)

		default:
			exc = NewException(ir.Exception, "invalid instruction "+in.Op.String())
		}

		if exc != nil {
			resume, e := m.handle(f, exc, pc, 0, lo, hi)
			if e != nil {
				return nil, exitRet, e
			}
			next = resume
		}
		pc = next
	}
}

// handle looks for the handler of exc raised at pc, searching regions from
// index from onward. Finally handlers on the way run immediately. It returns
// the pc of the catch handler, or the exception when no region within
// [lo, hi) catches it.
func (m *Machine) handle(f *frame, exc *Object, pc, from, lo, hi int) (int, *Object) {
	regions := f.em.Regions
	for i := from; i < len(regions); i++ {
		r := regions[i]
		if !r.Covers(pc) || r.TryStart < lo || r.TryEnd > hi {
			continue
		}
		switch r.Kind {
		case lower.CatchRegion:
			if r.CatchType != nil && !InstanceOf(exc, f.resolve(r.CatchType)) {
				continue
			}
			f.stack = append(f.stack[:0], exc)
			return r.HandlerStart, nil
		case lower.FinallyRegion:
			saved := f.stack
			f.stack = nil
			if _, _, e := m.run(f, r.HandlerStart, r.HandlerStart, r.HandlerEnd); e != nil {
				exc = e
			}
			f.stack = saved
		}
	}
	return 0, exc
}

// runFinallies runs, innermost first, the finally handlers of regions that
// cover pc but not target. On failure it returns the exception and the index
// of the region whose handler raised it.
func (m *Machine) runFinallies(f *frame, pc, target, lo, hi int) (*Object, int) {
	for i, r := range f.em.Regions {
		if r.Kind != lower.FinallyRegion || !r.Covers(pc) || r.Covers(target) {
			continue
		}
		if r.TryStart < lo || r.TryEnd > hi {
			continue
		}
		if _, _, exc := m.run(f, r.HandlerStart, r.HandlerStart, r.HandlerEnd); exc != nil {
			return exc, i
		}
	}
	return nil, -1
}

func (m *Machine) callInstruction(f *frame, in lower.Instruction) *Object {
	if in.Method == nil {
		c := m.closeCtor(f, in.Ctor)
		args := f.popN(len(c.Params))
		this := f.pop()
		if this == nil {
			return NewException(ir.Exception, "null reference calling "+c.Key())
		}
		return m.runConstructor(c, this, args)
	}
	method := m.closeMethod(f, in.Method)
	args := f.popN(len(method.Params))
	var this any
	if !method.IsStatic() {
		this = f.pop()
		if this == nil {
			return NewException(ir.Exception, "null reference calling "+method.Key())
		}
	}
	if in.Op == lower.CallVirt {
		impl, err := m.resolve(method, this)
		if err != nil {
			return exceptionOf(err)
		}
		method = impl
	}
	v, exc := m.call(method, this, args)
	if exc != nil {
		return exc
	}
	if method.Return != nil && method.Return.Kind != ir.KindVoid {
		f.push(v)
	}
	return nil
}

// closeMethod resolves a method reference that mentions generic parameters
// of the running member against the frame's type arguments.
func (m *Machine) closeMethod(f *frame, method *ir.Method) *ir.Method {
	if len(f.subst) == 0 {
		return method
	}
	closed := method
	if decl := f.resolve(method.Declaring); decl != method.Declaring {
		def := method.Definition()
		for _, cand := range decl.Methods {
			if cand.Definition() == def {
				closed = cand
				break
			}
		}
	}
	if len(method.TypeArgs) == 0 {
		return closed
	}
	args := make([]*ir.Type, len(method.TypeArgs))
	changed := closed != method
	for i, a := range method.TypeArgs {
		args[i] = f.resolve(a)
		changed = changed || args[i] != a
	}
	if !changed {
		return method
	}
	open := closed
	if len(open.TypeArgs) > 0 {
		open = open.Origin
	}
	inst, err := open.Instantiate(args...)
	if err != nil {
		return method
	}
	return inst
}

// closeCtor resolves a constructor of a generic type against the frame's
// type arguments.
func (m *Machine) closeCtor(f *frame, c *ir.Constructor) *ir.Constructor {
	t := f.resolve(c.Declaring)
	if t == c.Declaring {
		return c
	}
	for _, cand := range t.Constructors {
		if cand.Origin == c || (c.Origin != nil && cand.Origin == c.Origin) {
			return cand
		}
	}
	return c
}

func asObject(v any, fld *ir.Field) (*Object, *Object) {
	obj, ok := v.(*Object)
	if !ok || obj == nil {
		return nil, NewException(ir.Exception, "null reference accessing field "+fld.Name)
	}
	return obj, nil
}

func asArray(v any, idx int64) (*Array, *Object) {
	arr, ok := v.(*Array)
	if !ok || arr == nil {
		return nil, NewException(ir.Exception, "null reference indexing array")
	}
	if idx < 0 || idx >= int64(len(arr.Items)) {
		return nil, NewException(ir.Exception, fmt.Sprintf("index %d out of range [0,%d)", idx, len(arr.Items)))
	}
	return arr, nil
}
