package emit

import "github.com/tinylit/DeltaExpression/internal/ir"

// constructorOrder returns ctors with every sibling a constructor invokes
// ahead of it. Strongly connected components are found with Tarjan's
// algorithm; a component of more than one constructor, or a constructor
// invoking itself, is a cycle.
//
// Tarjan completes a component only after every component reachable from
// it, so the components come out dependencies first. Nodes are visited in
// definition order, which keeps the result deterministic.
func constructorOrder(ctors []*ConstructorEmitter) ([]*ConstructorEmitter, error) {
	var (
		index   = 0
		stack   []*ConstructorEmitter
		indices = make(map[*ConstructorEmitter]int)
		lowlink = make(map[*ConstructorEmitter]int)
		onStack = make(map[*ConstructorEmitter]bool)
		order   []*ConstructorEmitter
		cycle   []*ConstructorEmitter
	)

	var strongConnect func(*ConstructorEmitter)
	strongConnect = func(v *ConstructorEmitter) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range v.siblings {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []*ConstructorEmitter
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if cycle == nil && (len(scc) > 1 || invokesSelf(v)) {
				cycle = scc
			}
			order = append(order, scc...)
		}
	}

	for _, c := range ctors {
		if _, visited := indices[c]; !visited {
			strongConnect(c)
		}
	}
	if cycle != nil {
		return nil, ir.NewMemberCycle(cyclePath(cycle))
	}
	return order, nil
}

func invokesSelf(c *ConstructorEmitter) bool {
	for _, s := range c.siblings {
		if s == c {
			return true
		}
	}
	return false
}

// cyclePath walks sibling edges inside scc from its first member until it
// returns there, naming each constructor by key.
func cyclePath(scc []*ConstructorEmitter) []string {
	in := make(map[*ConstructorEmitter]bool, len(scc))
	for _, c := range scc {
		in[c] = true
	}
	start := scc[len(scc)-1]
	path := []string{start.Constructor().Key()}
	visited := map[*ConstructorEmitter]bool{}
	for cur := start; ; {
		visited[cur] = true
		var next *ConstructorEmitter
		for _, s := range cur.siblings {
			if in[s] && (!visited[s] || s == start) {
				next = s
				break
			}
		}
		if next == nil {
			break
		}
		path = append(path, next.Constructor().Key())
		if next == start {
			break
		}
		cur = next
	}
	return path
}
