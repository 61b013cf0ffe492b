package lower

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
)

// lowerer holds the per-body lowering state. Slots are assigned on first use
// and never reused; labels are resolved when the body is finished.
type lowerer struct {
	m       Member
	code    []Instruction
	locals  []Local
	slots   map[*expr.Variable]int
	retSlot int
	labels  []int
	regions []Region
	exit    Label

	// protected counts enclosing try bodies and catch handlers; returns
	// inside them must leave instead of branch.
	protected int
	// finally counts enclosing finally handlers, which cannot be left early.
	finally int
}

func lowerBody(m Member, vars []*expr.Variable, stmts []expr.Node) (*EmittedMember, error) {
	if m.Return == nil {
		m.Return = ir.Void
	}
	l := &lowerer{m: m, slots: make(map[*expr.Variable]int), retSlot: -1}
	l.exit = l.newLabel()
	for _, v := range vars {
		l.slot(v)
	}
	for _, s := range stmts {
		if err := l.stmt(s); err != nil {
			return nil, err
		}
	}

	// Single exit: every Return branches here.
	l.mark(l.exit)
	if m.Return.Kind != ir.KindVoid {
		l.emit(Instruction{Op: LdLoc, Index: l.returnSlot()})
	}
	l.emit(Instruction{Op: Ret})

	for id, at := range l.labels {
		if at < 0 {
			return nil, fmt.Errorf("label %d of %s was never marked", id, m.Key)
		}
	}
	em := &EmittedMember{
		Member:  m,
		Code:    l.code,
		Locals:  l.locals,
		Labels:  l.labels,
		Regions: l.regions,
	}
	fp, err := fingerprint(em)
	if err != nil {
		return nil, err
	}
	em.fingerprint = fp
	return em, nil
}

func (l *lowerer) emit(in Instruction) { l.code = append(l.code, in) }

func (l *lowerer) newLabel() Label {
	l.labels = append(l.labels, -1)
	return Label(len(l.labels) - 1)
}

func (l *lowerer) mark(lb Label) { l.labels[lb] = len(l.code) }

func (l *lowerer) branch(op Op, lb Label) { l.emit(Instruction{Op: op, Label: lb}) }

func (l *lowerer) slot(v *expr.Variable) int {
	if s, ok := l.slots[v]; ok {
		return s
	}
	s := len(l.locals)
	l.slots[v] = s
	l.locals = append(l.locals, Local{Slot: s, Name: v.Name, Type: v.Type})
	return s
}

func (l *lowerer) returnSlot() int {
	if l.retSlot < 0 {
		l.retSlot = len(l.locals)
		l.locals = append(l.locals, Local{Slot: l.retSlot, Name: "$ret", Type: l.m.Return})
	}
	return l.retSlot
}

// stmt lowers n and discards its value.
func (l *lowerer) stmt(n expr.Node) error {
	if err := l.node(n); err != nil {
		return err
	}
	if !expr.IsVoid(n) {
		l.emit(Instruction{Op: Pop})
	}
	return nil
}

// value lowers n and converts the pushed value to type to.
func (l *lowerer) value(n expr.Node, to *ir.Type) error {
	if err := l.node(n); err != nil {
		return err
	}
	l.coerce(n.Type(), to)
	return nil
}

// coerce emits the implicit conversion from one static type to another.
func (l *lowerer) coerce(from, to *ir.Type) {
	switch {
	case to == nil || ir.Identical(from, to):
	case from.Kind == ir.KindInt && to.Kind == ir.KindFloat:
		l.emit(Instruction{Op: ConvFloat})
	case ir.IsValue(from) && !ir.IsValue(to):
		l.emit(Instruction{Op: Box, Type: from})
	}
}

func (l *lowerer) node(n expr.Node) error {
	switch n := n.(type) {
	case *expr.ConstExpr:
		if n.Value == nil {
			l.emit(Instruction{Op: LdNull})
		} else {
			l.emit(Instruction{Op: Ldc, Value: n.Value, Type: n.Type()})
		}
	case *expr.DefaultExpr:
		l.emit(Instruction{Op: LdDefault, Type: n.Type()})
	case *expr.ThisExpr:
		if l.m.Static {
			return ir.NewInvalidTarget("this is not available in static member " + l.m.Key)
		}
		l.emit(Instruction{Op: LdThis})
	case *expr.VarExpr:
		l.emit(Instruction{Op: LdLoc, Index: l.slot(n.Var)})
	case *expr.ArgExpr:
		p, err := l.param(n.Param)
		if err != nil {
			return err
		}
		l.emit(Instruction{Op: LdArg, Index: p.Position})
		if p.ByRef() {
			l.emit(Instruction{Op: LdInd})
		}
	case *expr.FieldExpr:
		if n.Field.Static {
			l.emit(Instruction{Op: LdSFld, Field: n.Field})
			return nil
		}
		if err := l.node(n.Target); err != nil {
			return err
		}
		l.emit(Instruction{Op: LdFld, Field: n.Field})
	case *expr.PropertyExpr:
		g := n.Property.Getter
		if g == nil {
			return ir.NewInvalidTarget(fmt.Sprintf("property %s has no getter", n.Property.Name))
		}
		if n.Target != nil {
			if err := l.node(n.Target); err != nil {
				return err
			}
		}
		l.emit(Instruction{Op: callOp(g, g.IsVirtual()), Method: g})
	case *expr.CallExpr:
		return l.call(n)
	case *expr.NewExpr:
		if err := expr.CheckArguments(n.Constructor.Key(), n.Constructor.Params, n.Args); err != nil {
			return err
		}
		if err := l.args(n.Constructor.Params, n.Args); err != nil {
			return err
		}
		l.emit(Instruction{Op: NewObj, Ctor: n.Constructor})
	case *expr.InitExpr:
		if err := expr.CheckArguments(n.Constructor.Key(), n.Constructor.Params, n.Args); err != nil {
			return err
		}
		if err := l.node(n.Target); err != nil {
			return err
		}
		if err := l.args(n.Constructor.Params, n.Args); err != nil {
			return err
		}
		l.emit(Instruction{Op: Call, Ctor: n.Constructor})
	case *expr.AssignExpr:
		return l.assign(n)
	case *expr.BinaryExpr:
		return l.binary(n)
	case *expr.UnaryExpr:
		if err := l.node(n.Operand); err != nil {
			return err
		}
		if n.Op == expr.OpNot {
			l.emit(Instruction{Op: Not})
		} else {
			l.emit(Instruction{Op: Neg})
		}
	case *expr.ConvertExpr:
		return l.convert(n)
	case *expr.ArrayExpr:
		l.emit(Instruction{Op: Ldc, Value: int64(len(n.Items)), Type: ir.Int})
		l.emit(Instruction{Op: NewArr, Type: n.Elem})
		for i, it := range n.Items {
			l.emit(Instruction{Op: Dup})
			l.emit(Instruction{Op: Ldc, Value: int64(i), Type: ir.Int})
			if err := l.value(it, n.Elem); err != nil {
				return err
			}
			l.emit(Instruction{Op: StElem})
		}
	case *expr.IndexExpr:
		if err := l.node(n.Array); err != nil {
			return err
		}
		if err := l.node(n.Index); err != nil {
			return err
		}
		l.emit(Instruction{Op: LdElem})
	case *expr.LengthExpr:
		if err := l.node(n.Array); err != nil {
			return err
		}
		l.emit(Instruction{Op: LdLen})
	case *expr.BlockExpr:
		for _, v := range n.Vars {
			l.slot(v)
		}
		for _, s := range n.Stmts {
			if err := l.stmt(s); err != nil {
				return err
			}
		}
	case *expr.IfExpr:
		return l.ifExpr(n)
	case *expr.LoopExpr:
		top, end := l.newLabel(), l.newLabel()
		l.mark(top)
		if err := l.node(n.Test); err != nil {
			return err
		}
		l.branch(BrFalse, end)
		if err := l.stmt(n.Body); err != nil {
			return err
		}
		l.branch(Br, top)
		l.mark(end)
	case *expr.ReturnExpr:
		return l.ret(n)
	case *expr.ThrowExpr:
		if err := l.node(n.Value); err != nil {
			return err
		}
		l.emit(Instruction{Op: Throw})
	case *expr.TryExpr:
		return l.try(n)
	default:
		return ir.NewUnsupportedMember(l.m.Key, fmt.Sprintf("cannot lower %T", n))
	}
	return nil
}

// param resolves p against the member's parameter list by position.
func (l *lowerer) param(p *ir.Parameter) (*ir.Parameter, error) {
	if p.Position < 1 || p.Position > len(l.m.Params) {
		return nil, ir.NewInvalidTarget(fmt.Sprintf("parameter %q is not declared by %s", p.Name, l.m.Key))
	}
	own := l.m.Params[p.Position-1]
	if own.Direction != p.Direction || !ir.Identical(own.Type, p.Type) {
		return nil, ir.NewTypeMismatch(l.m.Key, p.Position, own.SlotType(), p.SlotType())
	}
	return own, nil
}

func callOp(m *ir.Method, virtual bool) Op {
	if virtual && !m.IsStatic() {
		return CallVirt
	}
	return Call
}

func (l *lowerer) call(n *expr.CallExpr) error {
	// Arguments were checked when the node was built; check again against
	// the callee as it is now.
	if err := expr.CheckArguments(n.Method.Key(), n.Method.Params, n.Args); err != nil {
		return err
	}
	if n.Target != nil {
		if err := l.node(n.Target); err != nil {
			return err
		}
	}
	if err := l.args(n.Method.Params, n.Args); err != nil {
		return err
	}
	l.emit(Instruction{Op: callOp(n.Method, n.Virtual), Method: n.Method})
	return nil
}

// args pushes arguments left to right; by-ref arguments as references.
func (l *lowerer) args(params []*ir.Parameter, args []expr.Node) error {
	for i, a := range args {
		p := params[i]
		if p.ByRef() {
			if err := l.address(a); err != nil {
				return err
			}
			continue
		}
		if err := l.value(a, p.Type); err != nil {
			return err
		}
	}
	return nil
}

// address pushes a reference to the storage n denotes.
func (l *lowerer) address(n expr.Node) error {
	switch n := n.(type) {
	case *expr.VarExpr:
		l.emit(Instruction{Op: LdLocA, Index: l.slot(n.Var)})
	case *expr.ArgExpr:
		p, err := l.param(n.Param)
		if err != nil {
			return err
		}
		if p.ByRef() {
			l.emit(Instruction{Op: LdArg, Index: p.Position})
		} else {
			l.emit(Instruction{Op: LdArgA, Index: p.Position})
		}
	case *expr.FieldExpr:
		if n.Field.Static {
			l.emit(Instruction{Op: LdSFldA, Field: n.Field})
			return nil
		}
		if err := l.node(n.Target); err != nil {
			return err
		}
		l.emit(Instruction{Op: LdFldA, Field: n.Field})
	case *expr.IndexExpr:
		if err := l.node(n.Array); err != nil {
			return err
		}
		if err := l.node(n.Index); err != nil {
			return err
		}
		l.emit(Instruction{Op: LdElemA})
	default:
		return ir.NewInvalidTarget(fmt.Sprintf("%T has no address", n))
	}
	return nil
}

func (l *lowerer) assign(n *expr.AssignExpr) error {
	to := n.Target.Type()
	switch t := n.Target.(type) {
	case *expr.VarExpr:
		if err := l.value(n.Value, to); err != nil {
			return err
		}
		l.emit(Instruction{Op: StLoc, Index: l.slot(t.Var)})
	case *expr.ArgExpr:
		p, err := l.param(t.Param)
		if err != nil {
			return err
		}
		if p.ByRef() {
			l.emit(Instruction{Op: LdArg, Index: p.Position})
			if err := l.value(n.Value, to); err != nil {
				return err
			}
			l.emit(Instruction{Op: StInd})
			return nil
		}
		if err := l.value(n.Value, to); err != nil {
			return err
		}
		l.emit(Instruction{Op: StArg, Index: p.Position})
	case *expr.FieldExpr:
		if t.Field.Static {
			if err := l.value(n.Value, to); err != nil {
				return err
			}
			l.emit(Instruction{Op: StSFld, Field: t.Field})
			return nil
		}
		if err := l.node(t.Target); err != nil {
			return err
		}
		if err := l.value(n.Value, to); err != nil {
			return err
		}
		l.emit(Instruction{Op: StFld, Field: t.Field})
	case *expr.IndexExpr:
		if err := l.node(t.Array); err != nil {
			return err
		}
		if err := l.node(t.Index); err != nil {
			return err
		}
		if err := l.value(n.Value, to); err != nil {
			return err
		}
		l.emit(Instruction{Op: StElem})
	case *expr.PropertyExpr:
		s := t.Property.Setter
		if s == nil {
			return ir.NewInvalidTarget(fmt.Sprintf("property %s has no setter", t.Property.Name))
		}
		if t.Target != nil {
			if err := l.node(t.Target); err != nil {
				return err
			}
		}
		if err := l.value(n.Value, to); err != nil {
			return err
		}
		l.emit(Instruction{Op: callOp(s, s.IsVirtual()), Method: s})
	default:
		return ir.NewInvalidTarget(fmt.Sprintf("%T cannot be assigned", t))
	}
	return nil
}

var binaryOps = map[expr.BinaryOp]Op{
	expr.OpAdd: Add, expr.OpSub: Sub, expr.OpMul: Mul, expr.OpDiv: Div, expr.OpRem: Rem,
	expr.OpEq: Ceq, expr.OpNe: Cne, expr.OpLt: Clt, expr.OpLe: Cle, expr.OpGt: Cgt, expr.OpGe: Cge,
}

func (l *lowerer) binary(n *expr.BinaryExpr) error {
	if n.Op == expr.OpAndAlso || n.Op == expr.OpOrElse {
		end := l.newLabel()
		if err := l.node(n.Left); err != nil {
			return err
		}
		l.emit(Instruction{Op: Dup})
		if n.Op == expr.OpAndAlso {
			l.branch(BrFalse, end)
		} else {
			l.branch(BrTrue, end)
		}
		l.emit(Instruction{Op: Pop})
		if err := l.node(n.Right); err != nil {
			return err
		}
		l.mark(end)
		return nil
	}

	operand := operandType(n.Left.Type(), n.Right.Type())
	if err := l.node(n.Left); err != nil {
		return err
	}
	l.widen(n.Left.Type(), operand)
	if err := l.node(n.Right); err != nil {
		return err
	}
	l.widen(n.Right.Type(), operand)
	l.emit(Instruction{Op: binaryOps[n.Op]})
	return nil
}

// operandType is the common numeric type of a binary operation, or nil when
// the operands are compared as they are.
func operandType(a, b *ir.Type) *ir.Type {
	if (a.Kind == ir.KindFloat && b.Kind == ir.KindInt) || (a.Kind == ir.KindInt && b.Kind == ir.KindFloat) {
		return ir.Float
	}
	return nil
}

func (l *lowerer) widen(from, to *ir.Type) {
	if to != nil && from.Kind == ir.KindInt && to.Kind == ir.KindFloat {
		l.emit(Instruction{Op: ConvFloat})
	}
}

func (l *lowerer) convert(n *expr.ConvertExpr) error {
	if err := l.node(n.Operand); err != nil {
		return err
	}
	from, to := n.Operand.Type(), n.Type()
	switch {
	case ir.Identical(from, to):
	case from.Kind == ir.KindInt && to.Kind == ir.KindFloat:
		l.emit(Instruction{Op: ConvFloat})
	case from.Kind == ir.KindFloat && to.Kind == ir.KindInt:
		l.emit(Instruction{Op: ConvInt})
	case ir.IsValue(from) && !ir.IsValue(to) && to.Kind != ir.KindGenericParam:
		l.emit(Instruction{Op: Box, Type: from})
	case ir.AssignableTo(from, to) && to.Kind != ir.KindGenericParam:
	default:
		l.emit(Instruction{Op: Cast, Type: to})
	}
	return nil
}

func (l *lowerer) ifExpr(n *expr.IfExpr) error {
	valued := !expr.IsVoid(n)
	branch := func(b expr.Node) error {
		if valued {
			return l.node(b)
		}
		return l.stmt(b)
	}

	otherwise := l.newLabel()
	if err := l.node(n.Test); err != nil {
		return err
	}
	l.branch(BrFalse, otherwise)
	if err := branch(n.Then); err != nil {
		return err
	}
	if n.Else == nil {
		l.mark(otherwise)
		return nil
	}
	end := l.newLabel()
	l.branch(Br, end)
	l.mark(otherwise)
	if err := branch(n.Else); err != nil {
		return err
	}
	l.mark(end)
	return nil
}

func (l *lowerer) ret(n *expr.ReturnExpr) error {
	if l.finally > 0 {
		return ir.NewInvalidTarget("cannot return from a finally block in " + l.m.Key)
	}
	want := l.m.Return
	switch {
	case n.Value == nil && want.Kind != ir.KindVoid:
		return ir.NewTypeMismatch(l.m.Key, 1, want, ir.Void)
	case n.Value != nil && want.Kind == ir.KindVoid:
		return ir.NewTypeMismatch(l.m.Key, 1, ir.Void, n.Value.Type())
	case n.Value != nil:
		vt := n.Value.Type()
		if !ir.Identical(vt, want) && !ir.AssignableTo(vt, want) {
			return ir.NewTypeMismatch(l.m.Key, 1, want, vt)
		}
		if err := l.value(n.Value, want); err != nil {
			return err
		}
		l.emit(Instruction{Op: StLoc, Index: l.returnSlot()})
	}
	if l.protected > 0 {
		l.branch(Leave, l.exit)
	} else {
		l.branch(Br, l.exit)
	}
	return nil
}

// try lowers a protected block. A try with both catches and a finally is a
// finally region enclosing a catch region.
func (l *lowerer) try(n *expr.TryExpr) error {
	end := l.newLabel()
	start := len(l.code)

	l.protected++
	if err := l.stmt(n.Body); err != nil {
		return err
	}
	l.branch(Leave, end)
	tryEnd := len(l.code)

	var catches []Region
	for _, c := range n.Catches {
		hs := len(l.code)
		if c.Var != nil {
			l.emit(Instruction{Op: StLoc, Index: l.slot(c.Var)})
		} else {
			l.emit(Instruction{Op: Pop})
		}
		if err := l.stmt(c.Body); err != nil {
			return err
		}
		l.branch(Leave, end)
		catches = append(catches, Region{
			Kind: CatchRegion, TryStart: start, TryEnd: tryEnd,
			HandlerStart: hs, HandlerEnd: len(l.code), CatchType: c.Type,
		})
	}
	l.protected--
	l.regions = append(l.regions, catches...)

	if n.Finally != nil {
		protectedEnd := len(l.code)
		hs := len(l.code)
		l.finally++
		if err := l.stmt(n.Finally); err != nil {
			return err
		}
		l.finally--
		l.emit(Instruction{Op: EndFinally})
		l.regions = append(l.regions, Region{
			Kind: FinallyRegion, TryStart: start, TryEnd: protectedEnd,
			HandlerStart: hs, HandlerEnd: len(l.code),
		})
	}
	l.mark(end)
	return nil
}
