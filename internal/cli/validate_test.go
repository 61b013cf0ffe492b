package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decode parses a JSON response, re-encoding its data into data.
func decode(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return resp
}

// TestValidate_Valid tests a valid plan in text form.
func TestValidate_Valid(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("testdata", "plans", "valid"))
	require.NoError(t, err)
	assert.Equal(t, "✓ Plan valid: 2 member(s) intercepted\n", out)
}

// TestValidate_ValidJSON tests the JSON payload of a valid plan.
func TestValidate_ValidJSON(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", filepath.Join("testdata", "plans", "valid"))
	require.NoError(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.Files)
	assert.Equal(t, []PlanEntry{
		{Member: "Calculator.Add(int,&int)", Interceptors: []string{"logging", "timing"}},
		{Member: "Greeter.Greet(string)", Interceptors: []string{"timing"}},
	}, result.Entries)
}

// TestValidate_Fixtures tests binding plan members to fixture types.
func TestValidate_Fixtures(t *testing.T) {
	dir := filepath.Join("testdata", "plans", "valid")

	_, err := execute(t, "validate", dir, "--fixture", "calculator,greeter")
	require.NoError(t, err)

	out, err := execute(t, "validate", dir, "--fixture", "calculator")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Plan invalid: 1 error(s)")
	assert.Contains(t, out, "intercept.Greeter.Greet(string): no overridable member with this key")

	_, err = execute(t, "validate", dir, "--fixture", "abacus")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// TestValidate_UnknownInterceptor tests that every unknown name is
// reported with its line.
func TestValidate_UnknownInterceptor(t *testing.T) {
	out, err := execute(t, "validate", "--format", "json", filepath.Join("testdata", "plans", "unknown"), "--fixture", "calculator")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePlanInvalid, resp.Error.Code)
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "intercept.Calculator.Add(int,&int)", result.Errors[0].Field)
	assert.Equal(t, `unknown interceptor "retry"`, result.Errors[0].Message)
	assert.Equal(t, "intercept.Calculator.Sub(int)", result.Errors[1].Field)
	assert.Equal(t, 5, result.Errors[1].Line)
}

// TestValidate_CompileError tests a plan the compiler rejects.
func TestValidate_CompileError(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("testdata", "plans", "duplicate"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "line 3: intercept.Calculator.Add(int,&int): interceptor \"timing\" is listed twice")
}

// TestValidate_LoadErrors tests missing and empty directories.
func TestValidate_LoadErrors(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join("testdata", "plans", "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E_PLAN_LOAD]: failed to load plan")

	out, err = execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no CUE files found")
}
