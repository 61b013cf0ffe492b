package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenariosDir = filepath.Join("..", "harness", "testdata", "scenarios")

// TestTestCommand_Pass tests running the harness scenarios against their
// golden snapshots.
func TestTestCommand_Pass(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ calculator_pass_through\n")
	assert.Contains(t, out, "✓ greeter_failures\n")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

// TestTestCommand_FilterJSON tests the filter and the JSON payload.
func TestTestCommand_FilterJSON(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "greeter_*", "--format", "json")
	require.NoError(t, err)

	var result TestResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, TestResult{
		Scenarios: []ScenarioResult{
			{Name: "greeter_chain_order", Pass: true},
			{Name: "greeter_failures", Pass: true},
		},
		Passed: 2,
		Total:  2,
	}, result)
}

// TestTestCommand_Update tests writing snapshots and then matching them.
func TestTestCommand_Update(t *testing.T) {
	golden := t.TempDir()

	_, err := execute(t, "test", scenariosDir, "--golden", golden, "--filter", "calculator_*", "--update")
	require.NoError(t, err)

	written, err := os.ReadFile(filepath.Join(golden, "calculator_write_back.golden"))
	require.NoError(t, err)
	expected, err := os.ReadFile(filepath.Join("..", "harness", "testdata", "golden", "calculator_write_back.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(expected), string(written))

	_, err = execute(t, "test", scenariosDir, "--golden", golden, "--filter", "calculator_*")
	require.NoError(t, err)
}

// TestTestCommand_Failures tests a failing scenario, a golden mismatch and a
// scenario that cannot load.
func TestTestCommand_Failures(t *testing.T) {
	dir := t.TempDir()
	scenarios := filepath.Join(dir, "scenarios")
	golden := filepath.Join(dir, "golden")
	require.NoError(t, os.MkdirAll(scenarios, 0755))
	require.NoError(t, os.MkdirAll(golden, 0755))

	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "a_wrong.yaml"), []byte(`
name: a_wrong
description: expects the wrong sum
fixture: calculator
calls:
  - member: "Calculator.Add(int,&int)"
    args: [1, 2]
    expect:
      result: 4
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "b_golden.yaml"), []byte(`
name: b_golden
description: passes but differs from its snapshot
fixture: calculator
calls:
  - member: "Calculator.Add(int,&int)"
    args: [1, 2]
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(golden, "b_golden.golden"), []byte("{}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(scenarios, "c_broken.yaml"), []byte("name: [\n"), 0644))

	out, err := execute(t, "test", scenarios)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ a_wrong\n  calls[0] Calculator.Add(int,&int): expected result 4, got 3\n")
	assert.Contains(t, out, "✗ b_golden\n  snapshot does not match golden file")
	assert.Contains(t, out, "✗ c_broken.yaml\n  failed to load scenario")
	assert.Contains(t, out, "Test Summary: 0 passed, 3 failed, 3 total")
}

// TestTestCommand_Errors tests command errors and an empty directory.
func TestTestCommand_Errors(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")

	_, err = execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)

	_, err = execute(t, "test", scenariosDir, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
