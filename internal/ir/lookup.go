package ir

// Constructor resolves a constructor declared on t whose parameters accept
// argTypes. Exact matches win over assignable ones. By-ref parameters are
// matched with RefOf(elem) argument types.
func (t *Type) Constructor(argTypes ...*Type) (*Constructor, error) {
	for _, exact := range []bool{true, false} {
		for _, c := range t.Constructors {
			if matchParams(c.ParamTypes(), argTypes, exact) {
				return c, nil
			}
		}
	}
	return nil, NewSignatureNotFound(t, ".ctor", argTypes)
}

// Method resolves a method named name accepting argTypes on t, its base
// chain, and for interfaces the extended interfaces.
func (t *Type) Method(name string, argTypes ...*Type) (*Method, error) {
	for _, exact := range []bool{true, false} {
		if m := t.findMethod(name, argTypes, exact, map[*Type]bool{}); m != nil {
			return m, nil
		}
	}
	return nil, NewSignatureNotFound(t, name, argTypes)
}

func (t *Type) findMethod(name string, argTypes []*Type, exact bool, seen map[*Type]bool) *Method {
	for cur := t; cur != nil; cur = cur.Base {
		if seen[cur] {
			return nil
		}
		seen[cur] = true
		for _, m := range cur.Methods {
			if m.Name == name && matchParams(m.ParamTypes(), argTypes, exact) {
				return m
			}
		}
		if cur.Kind == KindInterface {
			for _, i := range cur.Interfaces {
				if m := i.findMethod(name, argTypes, exact, seen); m != nil {
					return m
				}
			}
		}
	}
	return nil
}

// MethodsNamed returns every method named name visible on t, most derived first.
func (t *Type) MethodsNamed(name string) []*Method {
	var out []*Method
	for cur := t; cur != nil; cur = cur.Base {
		for _, m := range cur.Methods {
			if m.Name == name {
				out = append(out, m)
			}
		}
	}
	return out
}

// Field resolves a field by name on t or its base chain.
func (t *Type) Field(name string) (*Field, error) {
	for cur := t; cur != nil; cur = cur.Base {
		for _, f := range cur.Fields {
			if f.Name == name {
				return f, nil
			}
		}
	}
	return nil, NewSignatureNotFound(t, name, nil)
}

// Property resolves a property by name on t or its base chain.
func (t *Type) Property(name string) (*Property, error) {
	for cur := t; cur != nil; cur = cur.Base {
		for _, p := range cur.Properties {
			if p.Name == name {
				return p, nil
			}
		}
	}
	return nil, NewSignatureNotFound(t, name, nil)
}

// ResolveVirtual finds the implementation of m for a receiver whose runtime
// type is t: the most derived method that overrides m, or for interface and
// host members without override links, the most derived non-abstract method
// with the same signature.
func (t *Type) ResolveVirtual(m *Method) *Method {
	for cur := t; cur != nil; cur = cur.Base {
		for _, cand := range cur.Methods {
			if cand.IsStatic() {
				continue
			}
			if cand.OverridesMethod(m) && cand.Implementation() != nil {
				return cand
			}
		}
	}
	for cur := t; cur != nil; cur = cur.Base {
		for _, cand := range cur.Methods {
			if !cand.IsStatic() && cand.Implementation() != nil && cand.SameSignature(m) {
				return cand
			}
		}
	}
	return m
}

// VirtualMethods returns the overridable instance methods visible on t, most
// derived declaration first, without duplicates of overridden members.
func (t *Type) VirtualMethods() []*Method {
	var out []*Method
	for cur := t; cur != nil; cur = cur.Base {
	next:
		for _, m := range cur.Methods {
			if m.IsStatic() || !m.IsVirtual() || m.Attributes.Has(MethodFinal) {
				continue
			}
			for _, seen := range out {
				if seen.OverridesMethod(m) || seen.SameSignature(m) {
					continue next
				}
			}
			out = append(out, m)
		}
	}
	return out
}

func matchParams(params, args []*Type, exact bool) bool {
	if len(params) != len(args) {
		return false
	}
	for i, p := range params {
		a := args[i]
		switch {
		case Identical(p, a):
		case exact:
			return false
		case p.Kind == KindByRef:
			if a.Kind != KindByRef || !(Identical(p.Elem, a.Elem) || p.Elem.ContainsGenericParams()) {
				return false
			}
		case p.ContainsGenericParams():
		case !AssignableTo(a, p):
			return false
		}
	}
	return true
}
