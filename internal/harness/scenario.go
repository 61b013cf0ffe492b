package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario is one dispatch scenario: a fixture type, the interceptors a
// plan may name, the plan itself and the calls made through the proxy.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description says what the scenario checks.
	Description string `yaml:"description"`

	// Fixture names the base type to proxy. See Fixtures.
	Fixture string `yaml:"fixture"`

	// Interceptors defines the scripted interceptors the plan may name.
	Interceptors map[string]InterceptorSpec `yaml:"interceptors,omitempty"`

	// Plan is CUE source with an intercept field, mapping member keys to
	// interceptor names. An empty plan intercepts nothing.
	Plan string `yaml:"plan,omitempty"`

	// Calls are made in order on one proxy instance.
	Calls []CallStep `yaml:"calls"`

	// Assertions are checked against the trace after every call ran.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// InterceptorSpec scripts an interceptor. Every scripted interceptor records
// "<name>.before" and "<name>.after" around the rest of the chain.
type InterceptorSpec struct {
	// SetInput overwrites one input before the rest of the chain runs.
	SetInput *InputWrite `yaml:"set_input,omitempty"`

	// Fail makes the interceptor fail with this message instead of
	// proceeding. Inputs written by SetInput are still written back.
	Fail string `yaml:"fail,omitempty"`

	// Return short-circuits the chain with this value.
	Return any `yaml:"return,omitempty"`
}

// InputWrite is an input position and the value stored there.
type InputWrite struct {
	Index int `yaml:"index"`
	Value any `yaml:"value"`
}

// CallStep invokes one member of the fixture through the proxy.
type CallStep struct {
	// Member is the member key, e.g. "Calculator.Add(int,&int)".
	Member string `yaml:"member"`

	// Args are the argument values in position order. By-ref positions
	// become cells initialized with the given value.
	Args []any `yaml:"args"`

	// Expect is checked after the call. If nil, the call must not fail.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a call.
type ExpectClause struct {
	// Result is the expected return value. Omitted means unchecked.
	Result any `yaml:"result,omitempty"`

	// Refs maps by-ref argument positions to their values after the call.
	Refs map[int]any `yaml:"refs,omitempty"`

	// Error is the expected error message. Empty means the call succeeds.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an entry appears in the trace
	// - "trace_order": Check entries appear in order
	// - "trace_count": Check an entry appears exactly N times
	Type string `yaml:"type"`

	// Entry is the trace entry (used by trace_contains, trace_count).
	Entry string `yaml:"entry,omitempty"`

	// Entries is the expected order (used by trace_order).
	Entries []string `yaml:"entries,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, ordered by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)
	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, ok := Fixtures[s.Fixture]; !ok {
		return fmt.Errorf("unknown fixture %q", s.Fixture)
	}
	if len(s.Calls) == 0 {
		return fmt.Errorf("calls list is required and must be non-empty")
	}

	for name, spec := range s.Interceptors {
		if spec.Fail != "" && spec.Return != nil {
			return fmt.Errorf("interceptors.%s: fail and return are exclusive", name)
		}
		if spec.SetInput != nil && spec.SetInput.Index < 0 {
			return fmt.Errorf("interceptors.%s.set_input: index must be non-negative", name)
		}
	}

	for i, call := range s.Calls {
		if call.Member == "" {
			return fmt.Errorf("calls[%d]: member is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Entries) == 0 {
			return fmt.Errorf("assertions[%d]: entries list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Entry == "" {
			return fmt.Errorf("assertions[%d]: entry is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
