package harness

import "github.com/tinylit/DeltaExpression/internal/ir"

// CallResult is the observed outcome of one call.
type CallResult struct {
	Member string      `json:"member"`
	Result any         `json:"result,omitempty"`
	Refs   map[int]any `json:"refs,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every expect clause and assertion matched.
	Pass bool `json:"pass"`

	// Proxy is the name of the generated proxy type.
	Proxy string `json:"proxy"`

	// Calls holds one entry per call step, in order.
	Calls []CallResult `json:"calls"`

	// Trace contains the entries recorded by interceptors and fixture
	// members, in order.
	Trace []string `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Type is the generated proxy type, for callers that persist it.
	Type *ir.Type `json:"-"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Calls:  []CallResult{},
		Trace:  []string{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// record appends a trace entry.
func (r *Result) record(entry string) {
	r.Trace = append(r.Trace, entry)
}
