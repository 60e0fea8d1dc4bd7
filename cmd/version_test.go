package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	original := GetVersion()
	SetVersion(v)
	t.Cleanup(func() { SetVersion(original) })
}

func TestVersionCommand(t *testing.T) {
	withVersion(t, "2.4.0")

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "zapp version 2.4.0\n", out)
}

func TestVersionCommand_Unset(t *testing.T) {
	withVersion(t, "")

	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "zapp version \n", out)
}
