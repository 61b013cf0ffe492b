package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinylit/DeltaExpression/internal/harness"
	"github.com/tinylit/DeltaExpression/internal/ir"
	"github.com/tinylit/DeltaExpression/internal/plan"
	"github.com/tinylit/DeltaExpression/internal/sched"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Fixtures []string // fixture types every plan member must belong to
}

// ValidationError is one problem found in a plan.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// PlanEntry is the output form of a plan entry.
type PlanEntry struct {
	Member       string   `json:"member"`
	Interceptors []string `json:"interceptors"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Files   int               `json:"files"`
	Entries []PlanEntry       `json:"entries"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <plan-dir>",
		Short: "Validate an interception plan",
		Long: `Validate the CUE interception plan in a directory.

Checks the plan against its schema and resolves every interceptor name
against the built-in catalog. With --fixture, every intercepted member
must also be an overridable member of one of the named fixture types.

Exit codes:
  0 - Plan is valid
  1 - Plan has errors
  2 - Command error (directory not found, no CUE files, etc.)

Examples:
  deltac validate ./plans
  deltac validate ./plans --fixture calculator
  deltac validate ./plans --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Fixtures, "fixture", nil, "fixture types the plan applies to")

	return cmd
}

func runValidate(opts *ValidateOptions, planDir string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	logger := f.Logger()

	p, err := plan.Load(planDir)
	if err != nil {
		var cErr *plan.CompileError
		if errors.As(err, &cErr) {
			return outputValidation(f, ValidationResult{
				Entries: []PlanEntry{},
				Errors:  []ValidationError{validationError(cErr)},
			})
		}
		return f.CommandError(ErrCodePlanLoad, "failed to load plan", err)
	}
	f.VerboseLog("Loaded %d CUE file(s) from %s", p.Files, planDir)

	result := ValidationResult{Files: p.Files, Entries: make([]PlanEntry, 0, len(p.Entries))}
	for _, e := range p.Entries {
		result.Entries = append(result.Entries, PlanEntry{Member: e.Member, Interceptors: e.Interceptors})
	}

	for _, err := range plan.Builtins(logger).Validate(p) {
		var cErr *plan.CompileError
		if errors.As(err, &cErr) {
			result.Errors = append(result.Errors, validationError(cErr))
		}
	}

	if len(opts.Fixtures) > 0 {
		types := make([]*ir.Type, 0, len(opts.Fixtures))
		for _, name := range opts.Fixtures {
			fixture, ok := harness.Fixtures[name]
			if !ok {
				return f.CommandError(ErrCodeNotFound, "unknown fixture", fmt.Errorf("%q", name))
			}
			t, err := fixture(harness.Env{Loop: sched.NewLoop(), Logger: logger, Record: func(string) {}})
			if err != nil {
				return f.CommandError(ErrCodeGeneric, "failed to build fixture "+name, err)
			}
			types = append(types, t)
		}
		for _, e := range p.Unbound(types...) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "intercept." + e.Member,
				Message: "no overridable member with this key",
				Line:    e.Pos.Line(),
			})
		}
	}

	return outputValidation(f, result)
}

// validationError converts a plan compile error.
func validationError(e *plan.CompileError) ValidationError {
	v := ValidationError{Field: e.Field, Message: e.Message}
	if e.Pos.IsValid() {
		v.Line = e.Pos.Line()
	}
	return v
}

func outputValidation(f *OutputFormatter, result ValidationResult) error {
	result.Valid = len(result.Errors) == 0
	if result.Valid {
		return f.Success(result, fmt.Sprintf("✓ Plan valid: %d member(s) intercepted\n", len(result.Entries)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "✗ Plan invalid: %d error(s)\n", len(result.Errors))
	for _, e := range result.Errors {
		if e.Line > 0 {
			fmt.Fprintf(&b, "  line %d: %s: %s\n", e.Line, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  %s: %s\n", e.Field, e.Message)
		}
	}
	return f.Failure(ErrCodePlanInvalid, fmt.Sprintf("%d plan error(s)", len(result.Errors)), result, b.String())
}
