package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOutputFormatter_JSONSuccess tests the ok envelope.
func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}, "ignored"))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"result": "success"}, resp.Data)
	assert.Nil(t, resp.Error)
	assert.NotContains(t, buf.String(), "ignored")
}

// TestOutputFormatter_TextSuccess tests that text mode prints the text only.
func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, formatter.Success(map[string]string{"result": "success"}, "✓ done\n"))
	assert.Equal(t, "✓ done\n", buf.String())
}

// TestOutputFormatter_Failure tests that a check failure carries its payload
// and exit code 1.
func TestOutputFormatter_Failure(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	err := formatter.Failure(ErrCodeVerifyFailed, "1 fingerprint mismatch(es)", map[string]int{"n": 1}, "")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, map[string]any{"n": float64(1)}, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeVerifyFailed, resp.Error.Code)
}

// TestOutputFormatter_Error tests both formats of an error, with and
// without details.
func TestOutputFormatter_Error(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, formatter.Error(ErrCodeStore, "failed", map[string]string{"file": "a.db"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStore, resp.Error.Code)
	assert.Equal(t, "failed", resp.Error.Message)
	assert.NotNil(t, resp.Error.Details)

	buf.Reset()
	formatter = &OutputFormatter{Format: "text", Writer: buf}
	require.NoError(t, formatter.Error(ErrCodeStore, "failed", "a.db"))
	assert.Equal(t, "Error [E_STORE]: failed\n", buf.String())

	buf.Reset()
	formatter.Verbose = true
	require.NoError(t, formatter.Error(ErrCodeStore, "failed", "a.db"))
	assert.Equal(t, "Error [E_STORE]: failed\nDetails: a.db\n", buf.String())
}

// TestOutputFormatter_CommandError tests that command errors exit with 2
// and unwrap to the cause.
func TestOutputFormatter_CommandError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}
	cause := errors.New("no such file")

	err := formatter.CommandError(ErrCodeNotFound, "database not found", cause)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Error [E_NOT_FOUND]: database not found: no such file\n", buf.String())
}

// TestOutputFormatter_VerboseLog tests that verbose logs go to the error
// writer and only when verbose.
func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	formatter.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}

// TestOutputFormatter_Logger tests the level of the library logger.
func TestOutputFormatter_Logger(t *testing.T) {
	errOut := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: &bytes.Buffer{}, ErrWriter: errOut}

	formatter.Logger().Info("quiet")
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.Logger().Debug("loud")
	assert.Contains(t, errOut.String(), "msg=loud")
}

// TestGetExitCode tests the default exit code of plain errors.
func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, "bad path: boom", WrapExitError(ExitCommandError, "bad path", errors.New("boom")).Error())
}
