package lower

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// CanonicalJSON renders the listing of m as canonical JSON: object keys
// sorted by UTF-16 code units, NFC-normalized strings, no HTML escaping and
// no floats. Float literals are carried as their listing text.
func CanonicalJSON(m *EmittedMember) ([]byte, error) {
	params := make([]any, len(m.Member.Params))
	for i, p := range m.Member.Params {
		params[i] = map[string]any{
			"position":  p.Position,
			"name":      p.Name,
			"type":      p.SlotType().Key(),
			"direction": p.Direction.String(),
		}
	}
	locals := make([]any, len(m.Locals))
	for i, l := range m.Locals {
		locals[i] = map[string]any{"slot": l.Slot, "name": l.Name, "type": l.Type.Key()}
	}
	code := make([]any, len(m.Code))
	for pc, in := range m.Code {
		entry := map[string]any{"op": in.Op.String()}
		if op := operand(m, in); op != "" {
			entry["operand"] = op
		}
		code[pc] = entry
	}
	regions := make([]any, len(m.Regions))
	for i, r := range m.Regions {
		entry := map[string]any{
			"kind":          r.Kind.String(),
			"try_start":     r.TryStart,
			"try_end":       r.TryEnd,
			"handler_start": r.HandlerStart,
			"handler_end":   r.HandlerEnd,
		}
		if r.CatchType != nil {
			entry["catch"] = r.CatchType.Key()
		}
		regions[i] = entry
	}
	ret := m.Member.Return
	if ret == nil {
		ret = ir.Void
	}
	return marshalCanonical(map[string]any{
		"member":  m.Member.Key,
		"return":  ret.Key(),
		"static":  m.Member.Static,
		"params":  params,
		"locals":  locals,
		"code":    code,
		"regions": regions,
	})
}

func fingerprint(m *EmittedMember) (string, error) {
	data, err := CanonicalJSON(m)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", m.Member.Key, err)
	}
	return ir.HashWithDomain(ir.DomainMember, data), nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case string:
		return marshalCanonicalString(val)
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return lessUTF16(keys[i], keys[j]) })

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalCanonicalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %w", k, err)
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	}
	return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
}

func marshalCanonicalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// lessUTF16 orders strings by UTF-16 code units.
func lessUTF16(a, b string) bool {
	ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}
