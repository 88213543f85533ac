package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilters(t *testing.T) {
	filters, err := buildFilters("", nil)
	require.NoError(t, err)
	assert.Nil(t, filters)

	filters, err = buildFilters("deal", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_type": "deal"}, filters)

	filters, err = buildFilters("", []string{"industry=fintech"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"industry": "fintech"}, filters)

	filters, err = buildFilters("deal", []string{"outcome=won,pending"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"doc_type": "deal",
		"outcome":  []any{"won", "pending"},
	}, filters)

	_, err = buildFilters("", []string{"malformed"})
	assert.Error(t, err)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", excerpt("short", 10))
	assert.Equal(t, "line one line two", excerpt("line one\nline two", 50))

	out := excerpt("abcdefghij", 5)
	assert.Equal(t, "abcde...", out)
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"ingest", "search", "retrieve", "status", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
