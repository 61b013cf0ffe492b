package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRootCommand tests the root command metadata.
func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "deltac", cmd.Use)
	assert.Contains(t, cmd.Long, "interception plans")
}

// TestCommandPresence tests that every subcommand is registered.
func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"validate", "test", "inspect", "verify"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err, "Command %s should exist", name)
			require.NotNil(t, sub)
			assert.Equal(t, name, sub.Name())
		})
	}
}

// TestGlobalFlags tests the persistent flags and their defaults.
func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

// TestStoreCommandFlags tests that the store commands require --db.
func TestStoreCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"inspect", "verify"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		db := sub.Flags().Lookup("db")
		require.NotNil(t, db, name)
		assert.Equal(t, []string{"true"}, db.Annotations["cobra_annotation_bash_completion_one_required_flag"], name)
		assert.NotNil(t, sub.Flags().Lookup("build"), name)
	}
}

// TestInvalidFormat tests that an unknown --format is rejected before any
// command runs.
func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "yaml", "validate", "testdata/plans/valid"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}
