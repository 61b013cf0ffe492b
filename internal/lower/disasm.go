package lower

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// Disassemble renders m as a deterministic textual listing:
//
//	.member Calculator.Add(int,&int) int
//	.param 1 i int
//	.param 2 j &int
//	.local 0 $ret int
//	  0000 ldarg 1
//	  ...
//	.try 0000-0004 finally 0004-0006
func Disassemble(m *EmittedMember) string {
	var sb strings.Builder
	for _, line := range listing(m) {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func listing(m *EmittedMember) []string {
	ret := m.Member.Return
	if ret == nil {
		ret = ir.Void
	}
	header := fmt.Sprintf(".member %s %s", m.Member.Key, ret.Key())
	if m.Member.Static {
		header += " static"
	}
	lines := []string{header}
	for _, p := range m.Member.Params {
		lines = append(lines, fmt.Sprintf(".param %d %s %s", p.Position, p.Name, p.SlotType().Key()))
	}
	for _, l := range m.Locals {
		lines = append(lines, fmt.Sprintf(".local %d %s %s", l.Slot, l.Name, l.Type.Key()))
	}
	for pc, in := range m.Code {
		text := fmt.Sprintf("  %04d %s", pc, in.Op)
		if op := operand(m, in); op != "" {
			text += " " + op
		}
		lines = append(lines, text)
	}
	for _, r := range m.Regions {
		text := fmt.Sprintf(".try %04d-%04d %s", r.TryStart, r.TryEnd, r.Kind)
		if r.Kind == CatchRegion {
			text += " " + r.CatchType.Key()
		}
		text += fmt.Sprintf(" %04d-%04d", r.HandlerStart, r.HandlerEnd)
		lines = append(lines, text)
	}
	return lines
}

// operand formats the operand of in, or "" when the op takes none.
func operand(m *EmittedMember, in Instruction) string {
	switch in.Op {
	case Ldc:
		return in.Type.Key() + " " + literal(in.Value)
	case LdDefault, NewArr, Box, Cast:
		return in.Type.Key()
	case LdArg, LdArgA, StArg, LdLoc, LdLocA, StLoc:
		return strconv.Itoa(in.Index)
	case LdFld, LdFldA, StFld, LdSFld, LdSFldA, StSFld:
		return in.Field.Declaring.Key() + "::" + in.Field.Name
	case Call, CallVirt:
		if in.Method == nil {
			return in.Ctor.Key()
		}
		return methodRef(in.Method)
	case NewObj:
		return in.Ctor.Key()
	}
	if in.Op.IsBranch() {
		return fmt.Sprintf("%04d", m.Target(in))
	}
	return ""
}

func methodRef(m *ir.Method) string {
	key := m.Key()
	if len(m.TypeArgs) == 0 {
		return key
	}
	args := make([]string, len(m.TypeArgs))
	for i, a := range m.TypeArgs {
		args[i] = a.Key()
	}
	return key + "<" + strings.Join(args, ",") + ">"
}

func literal(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}
