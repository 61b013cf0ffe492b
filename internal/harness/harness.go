package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"github.com/tinylit/DeltaExpression/internal/aop"
	"github.com/tinylit/DeltaExpression/internal/emit"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/plan"
	"github.com/tinylit/DeltaExpression/internal/sched"
	"github.com/tinylit/DeltaExpression/internal/vm"
)

// proxySuffix names every generated proxy, so results are reproducible.
const proxySuffix = "proxy"

// Harness runs dispatch scenarios.
type Harness struct {
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithLogger sets the logger passed to the emitter, proxy builder and
// machine.
//
// Default: discards all output
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a harness.
func New(opts ...Option) *Harness {
	h := &Harness{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Build the fixture on a fresh loop
//  2. Compile the plan and register its chains
//  3. Build and construct the proxy
//  4. Make every call, comparing against its expect clause
//  5. Check the trace assertions
//
// An error is returned when the scenario cannot run at all. Mismatches are
// reported in Result.Errors.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := NewResult()
	loop := sched.NewLoop(sched.WithLogger(h.logger))

	fixture, ok := Fixtures[scenario.Fixture]
	if !ok {
		return nil, fmt.Errorf("unknown fixture %q", scenario.Fixture)
	}
	base, err := fixture(Env{Loop: loop, Logger: h.logger, Record: result.record})
	if err != nil {
		return nil, fmt.Errorf("build fixture %s: %w", scenario.Fixture, err)
	}

	reg, err := h.registry(scenario, base, result)
	if err != nil {
		return nil, err
	}

	proxy, err := aop.NewProxyBuilder(reg,
		aop.WithLoop(loop),
		aop.WithNameGenerator(emit.NewFixedNames(proxySuffix)),
		aop.WithLogger(h.logger),
	).Build(base)
	if err != nil {
		return nil, fmt.Errorf("build proxy: %w", err)
	}
	result.Proxy = proxy.Type.Name
	result.Type = proxy.Type

	machine := vm.New(vm.WithLogger(h.logger))
	obj, err := machine.Construct(proxy.Type.Constructors[0])
	if err != nil {
		return nil, fmt.Errorf("construct proxy: %w", err)
	}

	for i, step := range scenario.Calls {
		call, err := h.call(ctx, machine, base, obj, step)
		if err != nil {
			return nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		result.Calls = append(result.Calls, call)
		for _, mismatch := range compare(step, call) {
			result.AddError(fmt.Sprintf("calls[%d] %s: %s", i, step.Member, mismatch))
		}
	}

	for _, a := range scenario.Assertions {
		if err := checkAssertion(result.Trace, a); err != nil {
			result.AddError(err.Error())
		}
	}

	h.logger.Info("scenario done", "scenario", scenario.Name, "pass", result.Pass, "calls", len(result.Calls))
	return result, nil
}

// registry compiles the scenario plan against a catalog of its scripted
// interceptors.
func (h *Harness) registry(scenario *Scenario, base *ir.Type, result *Result) (*aop.Registry, error) {
	catalog := plan.NewCatalog()
	for name, spec := range scenario.Interceptors {
		name, spec := name, spec
		catalog.Add(name, func() aop.Interceptor {
			return scripted{name: name, spec: spec, record: result.record}
		})
	}

	p, err := plan.CompileString(scenario.Name+".cue", scenario.Plan)
	if err != nil {
		return nil, fmt.Errorf("compile plan: %w", err)
	}
	if unbound := p.Unbound(base); len(unbound) > 0 {
		return nil, fmt.Errorf("plan names unknown member %s", unbound[0].Member)
	}
	reg := aop.NewRegistry()
	if err := catalog.Apply(p, reg); err != nil {
		return nil, fmt.Errorf("apply plan: %w", err)
	}
	return reg, nil
}

// call makes one call step through the proxy and observes its outcome.
func (h *Harness) call(ctx context.Context, machine *vm.Machine, base *ir.Type, obj any, step CallStep) (CallResult, error) {
	method := findMember(base, step.Member)
	if method == nil {
		return CallResult{}, fmt.Errorf("unknown member %s", step.Member)
	}
	if len(step.Args) != len(method.Params) {
		return CallResult{}, fmt.Errorf("%s takes %d argument(s), got %d", step.Member, len(method.Params), len(step.Args))
	}

	args := make([]any, len(step.Args))
	cells := make(map[int]*ir.Cell)
	for i, a := range step.Args {
		if method.Params[i].ByRef() {
			cells[i] = &ir.Cell{Value: normalize(a)}
			args[i] = cells[i]
			continue
		}
		args[i] = normalize(a)
	}

	v, err := machine.InvokeVirtualContext(ctx, method, obj, args)
	if err == nil && aop.ShapeOf(method).Async() {
		v, err = aop.Await(ctx, v.(*sched.Pending))
	}

	out := CallResult{Member: step.Member, Result: v}
	if err != nil {
		out.Result = nil
		out.Error = err.Error()
	}
	if len(cells) > 0 {
		out.Refs = make(map[int]any, len(cells))
		for i, c := range cells {
			out.Refs[i] = c.Value
		}
	}
	return out, nil
}

// findMember returns the overridable member of base with the given key.
func findMember(base *ir.Type, key string) *ir.Method {
	for _, m := range base.VirtualMethods() {
		if m.Key() == key {
			return m
		}
	}
	return nil
}

// compare returns a message for every way the call departs from its expect
// clause.
func compare(step CallStep, got CallResult) []string {
	want := step.Expect
	if want == nil {
		want = &ExpectClause{}
	}
	var mismatches []string
	if want.Error != "" {
		if !strings.Contains(got.Error, want.Error) {
			mismatches = append(mismatches, fmt.Sprintf("expected error %q, got %q", want.Error, got.Error))
		}
	} else if got.Error != "" {
		mismatches = append(mismatches, fmt.Sprintf("unexpected error: %s", got.Error))
	}
	if want.Result != nil && !reflect.DeepEqual(normalize(want.Result), got.Result) {
		mismatches = append(mismatches, fmt.Sprintf("expected result %v, got %v", want.Result, got.Result))
	}
	positions := make([]int, 0, len(want.Refs))
	for i := range want.Refs {
		positions = append(positions, i)
	}
	sort.Ints(positions)
	for _, i := range positions {
		v := want.Refs[i]
		actual, ok := got.Refs[i]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("argument %d is not by-ref", i))
			continue
		}
		if !reflect.DeepEqual(normalize(v), actual) {
			mismatches = append(mismatches, fmt.Sprintf("expected ref %d = %v, got %v", i, v, actual))
		}
	}
	return mismatches
}

// normalize maps YAML scalars to runtime values: integers are int64.
func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return int64(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}

// scripted is the interceptor an InterceptorSpec describes.
type scripted struct {
	name   string
	spec   InterceptorSpec
	record func(string)
}

// before records entry and applies the input write. A non-nil error ends
// the chain here.
func (s scripted) before(ic *aop.InterceptContext) error {
	s.record(s.name + ".before")
	if w := s.spec.SetInput; w != nil {
		if w.Index >= len(ic.Inputs) {
			return fmt.Errorf("%s: input %d out of range", s.name, w.Index)
		}
		ic.Inputs[w.Index] = normalize(w.Value)
	}
	if s.spec.Fail != "" {
		return errors.New(s.spec.Fail)
	}
	return nil
}

func (s scripted) after() { s.record(s.name + ".after") }

func (s scripted) Run(ic *aop.InterceptContext, next aop.Intercept) error {
	if err := s.before(ic); err != nil {
		return err
	}
	defer s.after()
	if s.spec.Return != nil {
		return nil
	}
	return next()
}

func (s scripted) RunValue(ic *aop.InterceptContext, next aop.InterceptValue) (any, error) {
	if err := s.before(ic); err != nil {
		return nil, err
	}
	defer s.after()
	if s.spec.Return != nil {
		return normalize(s.spec.Return), nil
	}
	return next()
}

func (s scripted) RunAsync(ic *aop.InterceptContext, next aop.InterceptAsync) *sched.Pending {
	return s.runPending(ic, next)
}

func (s scripted) RunValueAsync(ic *aop.InterceptContext, next aop.InterceptValueAsync) *sched.Pending {
	return s.runPending(ic, next)
}

func (s scripted) runPending(ic *aop.InterceptContext, next func() *sched.Pending) *sched.Pending {
	if err := s.before(ic); err != nil {
		return sched.Rejected(ic.Loop, err)
	}
	if s.spec.Return != nil {
		s.after()
		return sched.Resolved(ic.Loop, normalize(s.spec.Return))
	}
	return next().Then(func(v any, err error) (any, error) {
		s.after()
		return v, err
	})
}
