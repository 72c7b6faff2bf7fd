package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestRootAppCommands(t *testing.T) {
	app := RootApp()

	names := make([]string, 0, len(app.Commands))
	for _, cmd := range app.Commands {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"serve", "feed", "suggest"}, names)

	for _, name := range []string{"feed", "suggest"} {
		cmd := app.Command(name)
		require.NotNil(t, cmd, name)
		assert.True(t, hasFlag(cmd.Flags, "visit"), "%s should accept --visit", name)
	}
}

func hasFlag(flags []cli.Flag, name string) bool {
	for _, f := range flags {
		for _, n := range f.Names() {
			if n == name {
				return true
			}
		}
	}
	return false
}
