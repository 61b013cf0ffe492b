package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleTrace = []string{"A.before", "B.before", "call", "B.after", "A.after", "A.before", "call", "A.after"}

// TestCheckAssertion tests every assertion type against a sample trace.
func TestCheckAssertion(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "contains",
			assertion: Assertion{Type: AssertTraceContains, Entry: "B.after"},
		},
		{
			name:      "contains missing",
			assertion: Assertion{Type: AssertTraceContains, Entry: "C.before"},
			wantErr:   "not found in trace",
		},
		{
			name:      "order",
			assertion: Assertion{Type: AssertTraceOrder, Entries: []string{"A.before", "call", "A.after"}},
		},
		{
			name:      "order not consecutive",
			assertion: Assertion{Type: AssertTraceOrder, Entries: []string{"A.before", "B.after"}},
		},
		{
			name:      "order reversed",
			assertion: Assertion{Type: AssertTraceOrder, Entries: []string{"B.after", "B.before"}},
			wantErr:   "B.after (pos 4) should be before B.before (pos 2)",
		},
		{
			name:      "order missing",
			assertion: Assertion{Type: AssertTraceOrder, Entries: []string{"A.before", "C.before"}},
			wantErr:   "missing entry: C.before",
		},
		{
			name:      "count",
			assertion: Assertion{Type: AssertTraceCount, Entry: "call", Count: 2},
		},
		{
			name:      "count zero",
			assertion: Assertion{Type: AssertTraceCount, Entry: "C.before", Count: 0},
		},
		{
			name:      "count wrong",
			assertion: Assertion{Type: AssertTraceCount, Entry: "A.before", Count: 1},
			wantErr:   "2 occurrences",
		},
		{
			name:      "unknown type",
			assertion: Assertion{Type: "final_state"},
			wantErr:   `unknown assertion type "final_state"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkAssertion(sampleTrace, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// TestAssertionError_Format tests that the message lists the full trace.
func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of call",
		Actual:   "0 occurrences",
		Trace:    []string{"A.before", "A.after"},
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "  Expected: 1 occurrences of call")
	assert.Contains(t, msg, "  Actual: 0 occurrences")
	assert.Contains(t, msg, "  [1] A.before\n  [2] A.after\n")
}
