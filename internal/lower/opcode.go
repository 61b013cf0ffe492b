package lower

import (
	"fmt"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Op is a stack-machine operation.
type Op uint8

const (
	Nop Op = iota

	// Constants.
	Ldc       // push Value
	LdNull    // push null
	LdDefault // push the zero value of Type
	LdThis    // push the receiver

	// Arguments are addressed by 1-based parameter position.
	LdArg  // push argument Index
	LdArgA // push a reference to argument Index
	StArg  // pop into argument Index

	// Locals are addressed by 0-based slot.
	LdLoc
	LdLocA
	StLoc

	// Fields.
	LdFld   // obj -> value
	LdFldA  // obj -> ref
	StFld   // obj, value ->
	LdSFld  // -> value
	LdSFldA // -> ref
	StSFld  // value ->

	// Indirect access through a reference.
	LdInd // ref -> value
	StInd // ref, value ->

	// Invocation.
	Call     // [this], args... -> [result]; binds exactly Method, or runs Ctor on this
	CallVirt // this, args... -> [result]; dispatches on the receiver
	NewObj   // args... -> obj

	// Arrays.
	NewArr  // length -> array of Type
	LdElem  // array, index -> value
	LdElemA // array, index -> ref
	StElem  // array, index, value ->
	LdLen   // array -> int

	// Conversions.
	Box       // value -> object
	Cast      // value -> value of Type, checked at run time
	ConvInt   // float -> int
	ConvFloat // int -> float

	// Arithmetic and comparison.
	Add
	Sub
	Mul
	Div
	Rem
	Ceq
	Cne
	Clt
	Cle
	Cgt
	Cge
	Not
	Neg

	// Control flow. Branch targets are labels.
	Br
	BrFalse
	BrTrue
	Leave      // empty the stack, run enclosing finally handlers, branch
	EndFinally // resume after a finally handler
	Throw      // exception ->
	Ret        // [value] -> leaves the member

	// Stack.
	Pop
	Dup
)

var opNames = [...]string{
	Nop: "nop", Ldc: "ldc", LdNull: "ldnull", LdDefault: "lddefault", LdThis: "ldthis",
	LdArg: "ldarg", LdArgA: "ldarga", StArg: "starg",
	LdLoc: "ldloc", LdLocA: "ldloca", StLoc: "stloc",
	LdFld: "ldfld", LdFldA: "ldflda", StFld: "stfld", LdSFld: "ldsfld", LdSFldA: "ldsflda", StSFld: "stsfld",
	LdInd: "ldind", StInd: "stind",
	Call: "call", CallVirt: "callvirt", NewObj: "newobj",
	NewArr: "newarr", LdElem: "ldelem", LdElemA: "ldelema", StElem: "stelem", LdLen: "ldlen",
	Box: "box", Cast: "cast", ConvInt: "conv.int", ConvFloat: "conv.float",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Rem: "rem",
	Ceq: "ceq", Cne: "cne", Clt: "clt", Cle: "cle", Cgt: "cgt", Cge: "cge", Not: "not", Neg: "neg",
	Br: "br", BrFalse: "brfalse", BrTrue: "brtrue", Leave: "leave", EndFinally: "endfinally",
	Throw: "throw", Ret: "ret",
	Pop: "pop", Dup: "dup",
}

func (op Op) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// IsBranch reports whether the operand of op is a label.
func (op Op) IsBranch() bool {
	switch op {
	case Br, BrFalse, BrTrue, Leave:
		return true
	}
	return false
}

// Label identifies a branch target within one member.
type Label int

// Instruction is one operation with its operand. Only the operand field
// relevant to Op is set.
type Instruction struct {
	Op     Op
	Value  any             // Ldc
	Index  int             // argument position or local slot
	Label  Label           // branch target
	Type   *ir.Type        // LdDefault, NewArr, Box, Cast
	Field  *ir.Field       // field access
	Method *ir.Method      // Call, CallVirt
	Ctor   *ir.Constructor // NewObj; Call without Method
}

// RegionKind distinguishes exception handler regions.
type RegionKind int

const (
	CatchRegion RegionKind = iota
	FinallyRegion
)

func (k RegionKind) String() string {
	if k == FinallyRegion {
		return "finally"
	}
	return "catch"
}

// Region is a protected instruction range [TryStart, TryEnd) with one
// handler [HandlerStart, HandlerEnd). Regions are listed innermost first, so
// the first matching region for a faulting instruction is the one to take.
type Region struct {
	Kind         RegionKind
	TryStart     int
	TryEnd       int
	HandlerStart int
	HandlerEnd   int
	CatchType    *ir.Type // CatchRegion only
}

// Covers reports whether pc is inside the protected range.
func (r Region) Covers(pc int) bool { return pc >= r.TryStart && pc < r.TryEnd }

// Local describes one local slot.
type Local struct {
	Slot int
	Name string
	Type *ir.Type
}
