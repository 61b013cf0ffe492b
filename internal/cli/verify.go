package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinylit/DeltaExpression/internal/store"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Database string
	Build    string // build id; empty verifies every build
}

// VerifyMismatch is the output form of a fingerprint mismatch.
type VerifyMismatch struct {
	Build  string `json:"build"`
	Type   string `json:"type"`
	Member string `json:"member,omitempty"`
	Stored string `json:"stored"`
	Actual string `json:"actual"`
}

// VerifyResult holds the verify output.
type VerifyResult struct {
	Intact     bool             `json:"intact"`
	Builds     int              `json:"builds"`
	Types      int              `json:"types"`
	Members    int              `json:"members"`
	Mismatches []VerifyMismatch `json:"mismatches"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify stored fingerprints",
		Long: `Recompute every member and type fingerprint in the artifact store
from the stored canonical forms and report the ones that differ.

Exit codes:
  0 - Every fingerprint matches
  1 - One or more fingerprints differ
  2 - Command error (database not found, etc.)

Examples:
  deltac verify --db ./artifacts.db
  deltac verify --db ./artifacts.db --build <id> --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Build, "build", "", "verify only this build")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	var builds []store.Build
	if opts.Build != "" {
		b, err := selectBuild(ctx, st, opts.Build)
		if err != nil {
			return f.CommandError(ErrCodeNotFound, "failed to select build", err)
		}
		builds = []store.Build{b}
	} else if builds, err = st.Builds(ctx); err != nil {
		return f.CommandError(ErrCodeStore, "failed to read builds", err)
	}

	result := VerifyResult{Builds: len(builds), Mismatches: []VerifyMismatch{}}
	for _, b := range builds {
		f.VerboseLog("Verifying build %s (%s)", b.ID, b.Label)
		types, err := st.Types(ctx, b.ID)
		if err != nil {
			return f.CommandError(ErrCodeStore, "failed to read types", err)
		}
		result.Types += len(types)
		for _, t := range types {
			result.Members += len(t.Members)
		}

		mismatches, err := st.Verify(ctx, b.ID)
		if err != nil {
			return f.CommandError(ErrCodeStore, "failed to verify build", err)
		}
		for _, m := range mismatches {
			result.Mismatches = append(result.Mismatches, VerifyMismatch{
				Build: b.ID, Type: m.Type, Member: m.Member, Stored: m.Stored, Actual: m.Actual,
			})
		}
	}
	result.Intact = len(result.Mismatches) == 0

	summary := fmt.Sprintf("Verified %d build(s), %d type(s), %d member(s)\n", result.Builds, result.Types, result.Members)
	if result.Intact {
		return f.Success(result, summary+"✓ All fingerprints match\n")
	}

	var b strings.Builder
	b.WriteString(summary)
	for _, m := range result.Mismatches {
		subject := m.Type
		if m.Member != "" {
			subject = m.Member
		}
		fmt.Fprintf(&b, "✗ %s: stored %s, actual %s (build %s)\n", subject, short(m.Stored), short(m.Actual), m.Build)
	}
	return f.Failure(ErrCodeVerifyFailed, fmt.Sprintf("%d fingerprint mismatch(es)", len(result.Mismatches)), result, b.String())
}
