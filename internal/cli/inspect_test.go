package cli

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// populate runs the named scenario with --db and returns the database path.
func populate(t *testing.T, filter string) string {
	t.Helper()
	db := filepath.Join(t.TempDir(), "artifacts.db")
	_, err := execute(t, "test", scenariosDir, "--filter", filter, "--db", db)
	require.NoError(t, err)
	return db
}

// TestInspect_Types tests listing every type of the latest build.
func TestInspect_Types(t *testing.T) {
	db := populate(t, "calculator_pass_through")

	out, err := execute(t, "inspect", "--db", db, "--format", "json")
	require.NoError(t, err)

	var result InspectResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "calculator_pass_through", result.Label)
	assert.Equal(t, int64(1), result.Seq)
	require.Len(t, result.Types, 2)
	assert.Equal(t, "Calculator", result.Types[0].Name)
	assert.Equal(t, "object", result.Types[0].Base)
	assert.Equal(t, "Calculator_proxy", result.Types[1].Name)
	assert.Equal(t, "Calculator", result.Types[1].Base)

	keys := map[string]string{}
	for _, m := range result.Types[1].Members {
		keys[m.Key] = m.Kind
		assert.Len(t, m.Fingerprint, 64)
		assert.Empty(t, m.Listing)
	}
	assert.Equal(t, "method", keys["Calculator_proxy.Add(int,&int)"])
	assert.NotContains(t, keys, "Calculator_proxy.Double(int,&int)")
}

// TestInspect_Type tests showing one type with its listings.
func TestInspect_Type(t *testing.T) {
	db := populate(t, "calculator_pass_through")

	out, err := execute(t, "inspect", "--db", db, "Calculator")
	require.NoError(t, err)
	assert.Contains(t, out, "(calculator_pass_through, seq 1)\n")
	assert.Contains(t, out, "\nCalculator : object  ")
	assert.Contains(t, out, "  method      Calculator.Add(int,&int)  ")
	assert.Contains(t, out, "    .member Calculator.Add(int,&int) int\n")
	assert.NotContains(t, out, "Calculator_proxy")
}

// TestInspect_Errors tests a missing database, an unknown type and an
// unknown build.
func TestInspect_Errors(t *testing.T) {
	_, err := execute(t, "inspect", "--db", filepath.Join(t.TempDir(), "missing.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	db := populate(t, "calculator_pass_through")
	out, err := execute(t, "inspect", "--db", db, "Abacus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "type Abacus: store: not found")

	_, err = execute(t, "inspect", "--db", db, "--build", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}

// TestInspect_EmptyDatabase tests a database without builds.
func TestInspect_EmptyDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	require.NoError(t, conn.Ping())
	require.NoError(t, conn.Close())

	out, err := execute(t, "inspect", "--db", db)
	require.Error(t, err)
	assert.Contains(t, out, "database has no builds")
}
