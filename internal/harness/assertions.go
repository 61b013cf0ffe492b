package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Trace    []string // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, entry := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s\n", i+1, entry)
	}
	return buf.String()
}

// checkAssertion dispatches on the assertion type.
func checkAssertion(trace []string, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertTraceContains checks if the trace contains the entry.
func assertTraceContains(trace []string, a Assertion) error {
	for _, entry := range trace {
		if entry == a.Entry {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("entry %s", a.Entry),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if entries first appear in the specified order.
// Entries don't need to be consecutive.
func assertTraceOrder(trace []string, a Assertion) error {
	positions := make(map[string]int)
	for i, entry := range trace {
		if positions[entry] == 0 {
			positions[entry] = i + 1 // 1-indexed for readability
		}
	}

	for _, entry := range a.Entries {
		if positions[entry] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all entries present: %v", a.Entries),
				Actual:   fmt.Sprintf("missing entry: %s", entry),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Entries); i++ {
		prev, curr := a.Entries[i-1], a.Entries[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("entries in order: %v", a.Entries),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the entry appears exactly the specified number of times.
func assertTraceCount(trace []string, a Assertion) error {
	count := 0
	for _, entry := range trace {
		if entry == a.Entry {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Entry),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}
