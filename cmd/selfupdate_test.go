package cmd

import (
	"testing"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfUpdate_RefusesDevelopmentBuilds(t *testing.T) {
	for _, v := range []string{"", "dev"} {
		t.Run("version "+v, func(t *testing.T) {
			withVersion(t, v)

			out, _, err := execute(t, "self-update")
			require.Error(t, err)
			assert.ErrorContains(t, err, "cannot self-update a development version")
			assert.Equal(t, ExitCodeError, getExitCode(err))
			assert.Empty(t, out, "nothing is checked before the version guard")
		})
	}
}

func TestSelfUpdate_ReleaseRepository(t *testing.T) {
	owner, repo, err := selfupdate.ParseSlug(githubRepoSlug).GetSlug()
	require.NoError(t, err)
	assert.Equal(t, "zapp-qa", owner)
	assert.Equal(t, "zapp", repo)
}
