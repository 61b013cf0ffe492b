package plan

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tinylit/DeltaExpression/internal/aop"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// Factory creates the interceptor a plan name refers to. It is called once
// per chain position, so stateful interceptors are not shared between
// members.
type Factory func() aop.Interceptor

// Catalog resolves interceptor names used in plans.
//
// Thread-safety: Catalog is safe for concurrent use.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Add registers f under name, replacing any earlier factory.
func (c *Catalog) Add(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

// Lookup returns the factory registered under name.
func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.factories))
	for n := range c.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports every interceptor name in p that c cannot resolve.
func (c *Catalog) Validate(p *Plan) []error {
	var errs []error
	for _, e := range p.Entries {
		for _, name := range e.Interceptors {
			if _, ok := c.Lookup(name); !ok {
				errs = append(errs, &CompileError{
					Field:   "intercept." + e.Member,
					Message: fmt.Sprintf("unknown interceptor %q", name),
					Pos:     e.Pos,
				})
			}
		}
	}
	return errs
}

// Apply registers the chains of p with reg. Nothing is registered when any
// name is unknown.
func (c *Catalog) Apply(p *Plan, reg *aop.Registry) error {
	if errs := c.Validate(p); len(errs) > 0 {
		return errs[0]
	}
	for _, e := range p.Entries {
		chain := make([]aop.Interceptor, len(e.Interceptors))
		for i, name := range e.Interceptors {
			f, _ := c.Lookup(name)
			chain[i] = f()
		}
		reg.RegisterKey(e.Member, chain...)
	}
	return nil
}

// Builtins returns a catalog with the interceptors every plan may use:
//
//	logging  logs each invocation and its outcome
//	timing   logs the duration of each invocation
func Builtins(logger *slog.Logger) *Catalog {
	c := NewCatalog()
	c.Add("logging", func() aop.Interceptor {
		return aop.Hooks{
			Before: func(ic *aop.InterceptContext) error {
				logger.Info("intercept", "member", ic.Main.Key(), "inputs", len(ic.Inputs))
				return nil
			},
			After: func(ic *aop.InterceptContext, _ any, err error) {
				if err != nil {
					logger.Warn("intercept failed", "member", ic.Main.Key(), "error", err)
					return
				}
				logger.Info("intercept done", "member", ic.Main.Key())
			},
		}
	})
	c.Add("timing", func() aop.Interceptor { return timing{logger: logger} })
	return c
}

// timing logs how long the rest of the chain took. For asynchronous shapes
// the clock stops when the pending result settles.
type timing struct {
	logger *slog.Logger
}

func (t timing) record(ic *aop.InterceptContext, start time.Time) {
	t.logger.Debug("intercept timing", "member", ic.Main.Key(), "duration", time.Since(start))
}

func (t timing) Run(ic *aop.InterceptContext, next aop.Intercept) error {
	defer t.record(ic, time.Now())
	return next()
}

func (t timing) RunValue(ic *aop.InterceptContext, next aop.InterceptValue) (any, error) {
	defer t.record(ic, time.Now())
	return next()
}

func (t timing) RunAsync(ic *aop.InterceptContext, next aop.InterceptAsync) *sched.Pending {
	return t.settle(ic, time.Now(), next)
}

func (t timing) RunValueAsync(ic *aop.InterceptContext, next aop.InterceptValueAsync) *sched.Pending {
	return t.settle(ic, time.Now(), next)
}

func (t timing) settle(ic *aop.InterceptContext, start time.Time, next func() *sched.Pending) *sched.Pending {
	return next().Then(func(v any, err error) (any, error) {
		t.record(ic, start)
		return v, err
	})
}
