package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"hunt", "discover", "plan", "history", "sync", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "pharmhunter", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestHuntCommand_Flags(t *testing.T) {
	for _, name := range []string{"quota", "focus", "phase", "geography", "exclusions", "rounds", "report", "leads", "json", "no-score", "no-draft"} {
		assert.NotNil(t, huntCmd.Flags().Lookup(name), "hunt should have --%s flag", name)
	}
}

func TestDiscoverAndPlan_ShareParamFlags(t *testing.T) {
	for _, name := range []string{"quota", "focus", "phase", "rounds"} {
		assert.NotNil(t, discoverCmd.Flags().Lookup(name), "discover should have --%s flag", name)
		assert.NotNil(t, planCmd.Flags().Lookup(name), "plan should have --%s flag", name)
	}
}

func TestHistoryCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range historyCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats", "hunts", "export", "import"} {
		assert.True(t, names[name], "history should have subcommand %q", name)
	}
}

func TestHistoryLimits_AreIndependent(t *testing.T) {
	list := historyListCmd.Flags().Lookup("limit")
	require.NotNil(t, list)
	hunts := historyHuntsCmd.Flags().Lookup("limit")
	require.NotNil(t, hunts)
	assert.Equal(t, "50", list.DefValue)
	assert.Equal(t, "20", hunts.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("read-only"))
}

func TestSyncCommand_Flags(t *testing.T) {
	for _, name := range []string{"sink", "all", "min-score", "dry-run"} {
		assert.NotNil(t, syncCmd.Flags().Lookup(name), "sync should have --%s flag", name)
	}
}
