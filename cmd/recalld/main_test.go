package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"serve", "compile", "drain"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestCompileCmd_RequiresProjectArg(t *testing.T) {
	require.Error(t, compileCmd.Args(compileCmd, nil))
	require.Error(t, compileCmd.Args(compileCmd, []string{"a", "b"}))
	require.NoError(t, compileCmd.Args(compileCmd, []string{"my-project"}))
}

func TestDrainCmd_ProjectFlag(t *testing.T) {
	flag := drainCmd.Flags().Lookup("project")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
}
