package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromLookuper_Defaults(t *testing.T) {
	cfg, err := FromLookuper(context.Background(), envconfig.MapLookuper(map[string]string{}))
	require.NoError(t, err)

	assert.Equal(t, "git-bob", cfg.AgentName)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 600*time.Second, cfg.CellTimeout)
	assert.Equal(t, ProviderGitHub, cfg.Provider())
	assert.Equal(t, "github.com", cfg.Host())
	assert.Equal(t, "anthropic", cfg.LLMProvider())
	assert.Equal(t, "claude-sonnet-4-0", cfg.LLMModel())
	assert.Empty(t, cfg.RunURL())
}

func TestFromLookuper_GitLab(t *testing.T) {
	cfg, err := FromLookuper(context.Background(), envconfig.MapLookuper(map[string]string{
		"GIT_SERVER_URL":   "https://gitlab.example.org",
		"GITLAB_API_KEY":   "glpat",
		"GIT_BOB_LLM_NAME": "openai:gpt-4o",
		"OPENAI_API_KEY":   "sk",
		"CI_JOB_URL":       "https://gitlab.example.org/g/p/-/jobs/1",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProviderGitLab, cfg.Provider())
	assert.Equal(t, "gitlab.example.org", cfg.Host())
	assert.Equal(t, "gpt-4o", cfg.LLMModel())
	assert.Equal(t, "https://gitlab.example.org/g/p/-/jobs/1", cfg.RunURL())
}

func TestRunURL_GitHubActions(t *testing.T) {
	cfg := Config{ServerURL: "https://github.com/", GitHubRunID: "42", GitHubRepository: "o/r"}
	assert.Equal(t, "https://github.com/o/r/actions/runs/42", cfg.RunURL())
}

func TestValidate(t *testing.T) {
	base := Config{ServerURL: "https://github.com", GitHubToken: "t", LLMName: "anthropic:x", AnthropicAPIKey: "k", MaxAttempts: 7}
	require.NoError(t, base.Validate())

	noToken := base
	noToken.GitHubToken = ""
	require.ErrorContains(t, noToken.Validate(), "GITHUB_API_KEY")

	badModel := base
	badModel.LLMName = "llama:3"
	require.ErrorContains(t, badModel.Validate(), "unsupported model")

	noKey := base
	noKey.LLMName = "gemini:gemini-2.0-flash"
	require.ErrorContains(t, noKey.Validate(), "GOOGLE_API_KEY")
}

func TestSensitiveEnvKeys(t *testing.T) {
	keys := Config{}.SensitiveEnvKeys()
	assert.Contains(t, keys, "GITHUB_API_KEY")
	assert.Contains(t, keys, "GITLAB_API_KEY")
	assert.Contains(t, keys, "OPENAI_API_KEY")
}
