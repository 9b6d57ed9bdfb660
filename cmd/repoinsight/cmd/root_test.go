package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmdSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"worker", "ingest", "query", "collections"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestIngestRejectsInvalidURL(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"ingest", "not-a-repo"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid GitHub repository URL")
}

func TestQueryRequiresArgs(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"query", "only-one-arg"})
	err := root.Execute()
	require.Error(t, err)
}
