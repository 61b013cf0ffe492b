package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinylit/DeltaExpression/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Build    string // build id; empty selects the latest build
}

// InspectMember is the output form of a stored member.
type InspectMember struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fingerprint"`
	Listing     string `json:"listing,omitempty"`
}

// InspectType is the output form of a stored type.
type InspectType struct {
	Name        string          `json:"name"`
	Base        string          `json:"base"`
	Fingerprint string          `json:"fingerprint"`
	Members     []InspectMember `json:"members"`
}

// InspectResult holds the inspect output.
type InspectResult struct {
	Build string        `json:"build"`
	Label string        `json:"label"`
	Seq   int64         `json:"seq"`
	Types []InspectType `json:"types"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [type]",
		Short: "Show stored types and members",
		Long: `Show the types of a build in the artifact store.

Without a type name every type of the build is listed with its members.
With a type name that type is shown together with the listing of each
emitted member.

Examples:
  deltac inspect --db ./artifacts.db
  deltac inspect --db ./artifacts.db Calculator_proxy
  deltac inspect --db ./artifacts.db --build <id> --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			typeName := ""
			if len(args) == 1 {
				typeName = args[0]
			}
			return runInspect(opts, typeName, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Build, "build", "", "build id (default: latest build)")

	return cmd
}

func runInspect(opts *InspectOptions, typeName string, cmd *cobra.Command) error {
	ctx := context.Background()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := openExisting(opts.Database, f)
	if err != nil {
		return err
	}
	defer st.Close()

	build, err := selectBuild(ctx, st, opts.Build)
	if err != nil {
		return f.CommandError(ErrCodeNotFound, "failed to select build", err)
	}
	f.VerboseLog("Inspecting build %s (%s, seq %d)", build.ID, build.Label, build.Seq)

	var records []store.TypeRecord
	if typeName != "" {
		t, err := st.Type(ctx, build.ID, typeName)
		if err != nil {
			return f.CommandError(ErrCodeNotFound, "failed to read type", err)
		}
		records = []store.TypeRecord{t}
	} else if records, err = st.Types(ctx, build.ID); err != nil {
		return f.CommandError(ErrCodeStore, "failed to read types", err)
	}

	result := InspectResult{Build: build.ID, Label: build.Label, Seq: build.Seq, Types: make([]InspectType, 0, len(records))}
	for _, rec := range records {
		t := InspectType{Name: rec.Name, Base: rec.Base, Fingerprint: rec.Fingerprint, Members: make([]InspectMember, 0, len(rec.Members))}
		for _, m := range rec.Members {
			im := InspectMember{Key: m.Key, Kind: m.Kind, Fingerprint: m.Fingerprint}
			if typeName != "" {
				im.Listing = m.Listing
			}
			t.Members = append(t.Members, im)
		}
		result.Types = append(result.Types, t)
	}

	return f.Success(result, formatInspect(result))
}

func formatInspect(r InspectResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build %s (%s, seq %d)\n", r.Build, r.Label, r.Seq)
	for _, t := range r.Types {
		fmt.Fprintf(&b, "\n%s : %s  %s\n", t.Name, t.Base, short(t.Fingerprint))
		for _, m := range t.Members {
			fmt.Fprintf(&b, "  %-11s %s  %s\n", m.Kind, m.Key, short(m.Fingerprint))
			if m.Listing != "" {
				for _, line := range strings.Split(strings.TrimRight(m.Listing, "\n"), "\n") {
					fmt.Fprintf(&b, "    %s\n", line)
				}
			}
		}
	}
	return b.String()
}

// short abbreviates a fingerprint for text output.
func short(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}

// openExisting opens a store that must already exist; store.Open would
// create an empty database otherwise.
func openExisting(path string, f *OutputFormatter) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, f.CommandError(ErrCodeNotFound, "database not found", err)
	}
	st, err := store.Open(path, store.WithLogger(f.Logger()))
	if err != nil {
		return nil, f.CommandError(ErrCodeStore, "failed to open database", err)
	}
	return st, nil
}

// selectBuild returns the build with the given id, or the latest build.
func selectBuild(ctx context.Context, st *store.Store, id string) (store.Build, error) {
	if id == "" {
		b, err := st.LatestBuild(ctx)
		if errors.Is(err, store.ErrNotFound) {
			return store.Build{}, errors.New("database has no builds")
		}
		return b, err
	}
	builds, err := st.Builds(ctx)
	if err != nil {
		return store.Build{}, err
	}
	for _, b := range builds {
		if b.ID == id {
			return b, nil
		}
	}
	return store.Build{}, fmt.Errorf("build %s: %w", id, store.ErrNotFound)
}
