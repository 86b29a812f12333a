package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCmd_ArgvIsFixed(t *testing.T) {
	t.Parallel()

	cmd := newRunCmd()

	// Exactly one image reference is accepted.
	assert.NoError(t, cmd.Args(cmd, []string{"housing-scraper:latest"}))

	err := cmd.Args(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an image reference")

	// The entrypoint argv is recorded at build time; anything after the
	// reference is an attempted override and is refused outright.
	tests := [][]string{
		{"housing-scraper:latest", "main.py"},
		{"housing-scraper:latest", "sh", "-c", "echo hi"},
		{"housing-scraper:latest", "--", "python", "other.py"},
	}
	for _, args := range tests {
		err := cmd.Args(cmd, args)
		require.Error(t, err, "%v", args)
		assert.Contains(t, err.Error(), "fixed at build time")
	}
}
