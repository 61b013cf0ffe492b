// Package expr provides the typed expression graph that member bodies are
// built from.
//
// Every node carries a static result type. Constructors that compose
// sub-nodes validate their inputs immediately: an argument list that does not
// fit its callee, a non-boolean condition or an unassignable target fails at
// construction time with an *ir.BuildError, never later during lowering.
//
// The graph is a tree: a node exclusively owns its children, and attaching a
// node that already has a parent fails with NODE_SHARED. Read a variable
// twice by creating two VarExpr nodes.
package expr

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Node is an expression in the graph. The interface is sealed.
type Node interface {
	// Type returns the static result type; ir.Void for statements.
	Type() *ir.Type
	node() *meta
}

// Addressable nodes denote storage that can be passed by reference.
type Addressable interface {
	Node
	addressable()
}

// Assignable nodes may appear on the left of an assignment.
type Assignable interface {
	Node
	assignable()
}

type meta struct {
	typ      *ir.Type
	attached bool
}

func (h *meta) Type() *ir.Type { return h.typ }
func (h *meta) node() *meta { return h }

// Attached reports whether n already belongs to a parent.
func Attached(n Node) bool { return n.node().attached }

// Adopt marks nodes as owned by a new parent. It fails without side effects
// if any node already has a parent or appears twice. Nil nodes are skipped.
func Adopt(nodes ...Node) error {
	for _, n := range nodes {
		if n != nil && n.node().attached {
			return ir.NewNodeShared(describe(n))
		}
	}
	for i, n := range nodes {
		if n == nil {
			continue
		}
		for _, prev := range nodes[:i] {
			if prev == n {
				return ir.NewNodeShared(describe(n))
			}
		}
	}
	for _, n := range nodes {
		if n != nil {
			n.node().attached = true
		}
	}
	return nil
}

func describe(n Node) string {
	return fmt.Sprintf("%T(%s)", n, n.Type().Key())
}

// IsVoid reports whether n produces no value.
func IsVoid(n Node) bool {
	return n.Type() == nil || n.Type().Kind == ir.KindVoid
}
