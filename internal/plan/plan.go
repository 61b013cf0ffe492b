package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/tinylit/DeltaExpression/internal/ir"
)

// schema closes the top level of a plan: only the intercept table is
// accepted, and every chain names at least one interceptor.
const schema = `
#Plan: {
	intercept?: [string]: [string, ...string]
}
`

// Entry binds one member to its ordered interceptor chain.
type Entry struct {
	// Member is the canonical member key, e.g. "Calculator.Add(int,&int)".
	Member string
	// Interceptors are catalog names, outermost first.
	Interceptors []string
	// Pos is the position of the chain in the plan source.
	Pos token.Pos
}

// Plan is a compiled interception plan. Entries are sorted by member key.
type Plan struct {
	Entries []Entry
	// Files is the number of CUE files the plan was loaded from; 0 for
	// plans compiled from a value or string.
	Files int
}

// CompileError represents a plan error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses a CUE value into a Plan.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`intercept: "Calculator.Add(int,&int)": ["logging"]`)
//	p, err := Compile(v)
func Compile(v cue.Value) (*Plan, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	def := v.Context().CompileString(schema).LookupPath(cue.ParsePath("#Plan"))
	u := def.Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	p := &Plan{}
	table := u.LookupPath(cue.ParsePath("intercept"))
	if !table.Exists() {
		return p, nil
	}
	iter, err := table.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		entry, err := compileEntry(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		p.Entries = append(p.Entries, entry)
	}
	sort.Slice(p.Entries, func(i, j int) bool { return p.Entries[i].Member < p.Entries[j].Member })
	return p, nil
}

func compileEntry(member string, v cue.Value) (Entry, error) {
	entry := Entry{Member: norm.NFC.String(member), Pos: v.Pos()}
	list, err := v.List()
	if err != nil {
		return entry, formatCUEError(err)
	}
	seen := make(map[string]bool)
	for list.Next() {
		name, err := list.Value().String()
		if err != nil {
			return entry, formatCUEError(err)
		}
		if seen[name] {
			return entry, &CompileError{
				Field:   "intercept." + member,
				Message: fmt.Sprintf("interceptor %q is listed twice", name),
				Pos:     list.Value().Pos(),
			}
		}
		seen[name] = true
		entry.Interceptors = append(entry.Interceptors, name)
	}
	return entry, nil
}

// CompileString compiles plan source held in memory.
func CompileString(filename, src string) (*Plan, error) {
	v := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// Load compiles the CUE files of dir as one plan.
func Load(dir string) (*Plan, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("plan: not a directory: %s", dir)
	}
	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("plan: scanning %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("plan: no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("plan: no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	p, err := Compile(cuecontext.New().BuildInstance(instances[0]))
	if err != nil {
		return nil, err
	}
	p.Files = len(files)
	return p, nil
}

// FindCUEFiles returns the .cue files directly in dir.
func FindCUEFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".cue" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// Unbound returns the entries whose member is not an interceptable virtual
// member of any of types.
func (p *Plan) Unbound(types ...*ir.Type) []Entry {
	known := make(map[string]bool)
	for _, t := range types {
		for _, m := range t.VirtualMethods() {
			known[m.Definition().Key()] = true
		}
	}
	var out []Entry
	for _, e := range p.Entries {
		if !known[e.Member] {
			out = append(out, e)
		}
	}
	return out
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
