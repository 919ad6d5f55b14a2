package envguard

import (
	"errors"
	"os"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func environ() []string {
	env := os.Environ()
	slices.Sort(env)
	return env
}

func TestRun_RemovesSensitive(t *testing.T) {
	t.Setenv("GITHUB_API_KEY", "gh")
	t.Setenv("DEPLOY_TOKEN", "dt")
	t.Setenv("DB_Password", "pw")
	t.Setenv("PLAIN_SETTING", "keep")

	g := New([]string{"DEPLOY_TOKEN"})
	err := g.Run(func() error {
		for _, name := range []string{"GITHUB_API_KEY", "DEPLOY_TOKEN", "DB_Password"} {
			_, ok := os.LookupEnv(name)
			assert.False(t, ok, name)
		}
		assert.Equal(t, "keep", os.Getenv("PLAIN_SETTING"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "gh", os.Getenv("GITHUB_API_KEY"))
	assert.Equal(t, "dt", os.Getenv("DEPLOY_TOKEN"))
}

func TestRun_RestoresOnError(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk")
	before := environ()

	sentinel := errors.New("boom")
	err := New(nil).Run(func() error {
		os.Setenv("CREATED_INSIDE", "1")
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.Equal(t, before, environ())
}

func TestRun_RestoresOnPanic(t *testing.T) {
	t.Setenv("MY_USERNAME", "bob")
	before := environ()

	require.Panics(t, func() {
		_ = New(nil).Run(func() error {
			os.Unsetenv("PATH")
			panic("kernel died")
		})
	})
	require.Equal(t, before, environ())
}

func TestIsSensitive(t *testing.T) {
	g := New([]string{"GITLAB_API_KEY", "TWINE_TOKEN"})
	assert.True(t, g.IsSensitive("TWINE_TOKEN"))
	assert.True(t, g.IsSensitive("aws_secret_access_KEY"))
	assert.True(t, g.IsSensitive("Username"))
	assert.False(t, g.IsSensitive("HOME"))
}
