package lower

import (
	"github.com/tinylit/DeltaExpression/internal/expr"
	"github.com/tinylit/DeltaExpression/internal/ir"
)

// State is the lifecycle state of a Body.
type State int

const (
	// Empty bodies have no statements yet.
	Empty State = iota
	// Building bodies accept statements and variable declarations.
	Building
	// Sealed bodies have been lowered and are frozen.
	Sealed
)

func (s State) String() string {
	switch s {
	case Building:
		return "building"
	case Sealed:
		return "sealed"
	}
	return "empty"
}

// Member describes the callable unit a body is lowered for.
type Member struct {
	Key       string
	Declaring *ir.Type
	Params    []*ir.Parameter
	Return    *ir.Type
	Static    bool
}

// Body is the ordered statement list of one member under construction.
//
// A Body is not safe for concurrent use. Sealing is irreversible: once
// sealed, Append, Declare and Seal fail with BODY_SEALED and the emitted
// member produced by the first Seal stays as it was.
type Body struct {
	key     string
	stmts   []expr.Node
	vars    []*expr.Variable
	state   State
	emitted *EmittedMember
}

// NewBody returns an empty body. key names the member in error messages.
func NewBody(key string) *Body {
	return &Body{key: key}
}

// State returns the lifecycle state.
func (b *Body) State() State { return b.state }

// Len returns the number of top-level statements.
func (b *Body) Len() int { return len(b.stmts) }

// Statements returns the top-level statements in order.
func (b *Body) Statements() []expr.Node {
	return append([]expr.Node(nil), b.stmts...)
}

// Append adds statements to the end of the body.
func (b *Body) Append(stmts ...expr.Node) error {
	if b.state == Sealed {
		return ir.NewBodySealed(b.key)
	}
	if err := expr.Adopt(stmts...); err != nil {
		return err
	}
	b.stmts = append(b.stmts, stmts...)
	if len(b.stmts) > 0 {
		b.state = Building
	}
	return nil
}

// Prepend inserts statements before the existing ones.
func (b *Body) Prepend(stmts ...expr.Node) error {
	if b.state == Sealed {
		return ir.NewBodySealed(b.key)
	}
	if err := expr.Adopt(stmts...); err != nil {
		return err
	}
	b.stmts = append(append([]expr.Node(nil), stmts...), b.stmts...)
	if len(b.stmts) > 0 {
		b.state = Building
	}
	return nil
}

// Declare reserves local slots for vars, in order, ahead of any variable
// first used by a statement.
func (b *Body) Declare(vars ...*expr.Variable) error {
	if b.state == Sealed {
		return ir.NewBodySealed(b.key)
	}
	b.vars = append(b.vars, vars...)
	if b.state == Empty {
		b.state = Building
	}
	return nil
}

// Seal lowers the body for m and freezes it. A lowering failure leaves the
// body unsealed.
func (b *Body) Seal(m Member) (*EmittedMember, error) {
	if b.state == Sealed {
		return nil, ir.NewBodySealed(b.key)
	}
	em, err := lowerBody(m, b.vars, b.stmts)
	if err != nil {
		return nil, err
	}
	b.state = Sealed
	b.emitted = em
	return em, nil
}

// Emitted returns the member produced by Seal, or nil before sealing.
func (b *Body) Emitted() *EmittedMember { return b.emitted }

// EmittedMember is the result of lowering one body: parameters, instruction
// stream, local slot table, label table and exception regions.
//
// An EmittedMember is immutable; callers must not modify its slices.
type EmittedMember struct {
	Member  Member
	Code    []Instruction
	Locals  []Local
	Labels  []int // label -> instruction index
	Regions []Region

	fingerprint string
}

// Target returns the instruction index a branch instruction jumps to.
func (m *EmittedMember) Target(in Instruction) int { return m.Labels[in.Label] }

// Count returns how many instructions use op.
func (m *EmittedMember) Count(op Op) int {
	n := 0
	for _, in := range m.Code {
		if in.Op == op {
			n++
		}
	}
	return n
}

// Fingerprint returns the content hash of the canonical listing.
func (m *EmittedMember) Fingerprint() string { return m.fingerprint }
