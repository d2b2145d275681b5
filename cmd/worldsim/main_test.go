package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	assert.Contains(t, execute(t, "version"), "worldsim dev")
}

func TestRunThenHistory(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out := execute(t, "run", "--db", db, "--days", "5", "--population", "4", "--seed", "3", "--log-level", "error", "--chart")
	assert.Contains(t, out, "Simulation Date:")
	assert.Contains(t, out, "Technological Advancements:")
	for _, title := range []string{"Population", "Births", "Deaths", "Total Wealth"} {
		assert.Contains(t, out, title)
	}

	out = execute(t, "history", "--db", db, "--width", "20", "--height", "4")
	assert.Contains(t, out, ": 5 days")
	assert.Contains(t, out, "Total Wealth")
}
