// Package config provides configuration management for git-bob.
package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

// Config holds the configuration of one run. It is loaded once at startup and passed down explicitly.
type Config struct {
	AgentName string `env:"GIT_BOB_AGENT_NAME,default=git-bob"`
	// Model in provider:model form, e.g. "anthropic:claude-sonnet-4-0" or "openai:gpt-4o"
	LLMName string `env:"GIT_BOB_LLM_NAME,default=anthropic:claude-sonnet-4-0"`

	ServerURL   string `env:"GIT_SERVER_URL,default=https://github.com"`
	GitHubToken string `env:"GITHUB_API_KEY"`
	GitLabToken string `env:"GITLAB_API_KEY"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	GoogleAPIKey    string `env:"GOOGLE_API_KEY"`

	MaxAttempts   int           `env:"GIT_BOB_MAX_ATTEMPTS,default=7"`
	CellTimeout   time.Duration `env:"GIT_BOB_CELL_TIMEOUT,default=600s"`
	PandocBinary  string        `env:"GIT_BOB_PANDOC,default=pandoc"`
	JupyterBinary string        `env:"GIT_BOB_JUPYTER,default=jupyter"`
	PptxTemplate  string        `env:"GIT_BOB_PPTX_TEMPLATE"`
	WorkDir       string        `env:"GIT_BOB_WORKDIR,default=."`
	// Model transcripts are saved here when set
	TranscriptDir string `env:"GIT_BOB_TRANSCRIPT_DIR"`

	// CI run log location
	GitHubRunID      string `env:"GITHUB_RUN_ID"`
	GitHubRepository string `env:"GITHUB_REPOSITORY"`
	CIJobURL         string `env:"CI_JOB_URL"`

	TelemetryEnabled  bool   `env:"GIT_BOB_TELEMETRY,default=false"`
	TelemetryEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// sensitiveEnvKeys are removed from the environment of generated code and redacted from everything posted.
var sensitiveEnvKeys = []string{
	"GITHUB_API_KEY",
	"GITLAB_API_KEY",
	"GITHUB_TOKEN",
	"GITLAB_TOKEN",
	"CI_JOB_TOKEN",
	"CI_DEPLOY_PASSWORD",
	"CI_REGISTRY_PASSWORD",
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GOOGLE_API_KEY",
	"GEMINI_API_KEY",
	"MISTRAL_API_KEY",
	"DEEPSEEK_API_KEY",
	"KISSKI_API_KEY",
	"BLABLADOR_API_KEY",
	"TWINE_USERNAME",
	"TWINE_PASSWORD",
	"ACTIONS_RUNTIME_TOKEN",
	"ACTIONS_ID_TOKEN_REQUEST_TOKEN",
}

// Load reads an optional .env file and then the environment.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil {
		clog.FromContext(ctx).Debug("No .env file found, using environment variables")
	}
	return FromLookuper(ctx, envconfig.OsLookuper())
}

// FromLookuper reads the configuration from l.
func FromLookuper(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("failed to process config: %w", err)
	}
	return cfg, nil
}

// SensitiveEnvKeys returns the names of the variables holding secrets.
func (c Config) SensitiveEnvKeys() []string {
	return sensitiveEnvKeys
}

// Provider derives the hosting provider from the server URL.
func (c Config) Provider() string {
	if strings.Contains(strings.ToLower(c.ServerURL), "gitlab") {
		return ProviderGitLab
	}
	return ProviderGitHub
}

// Host returns the host part of the server URL.
func (c Config) Host() string {
	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Host == "" {
		return c.ServerURL
	}
	return u.Host
}

// LLMProvider and LLMModel split LLMName.
func (c Config) LLMProvider() string {
	p, _, _ := strings.Cut(c.LLMName, ":")
	return p
}

func (c Config) LLMModel() string {
	_, m, ok := strings.Cut(c.LLMName, ":")
	if !ok {
		return c.LLMName
	}
	return m
}

// RunURL links to the CI job log of the current run, if any.
func (c Config) RunURL() string {
	switch {
	case c.CIJobURL != "":
		return c.CIJobURL
	case c.GitHubRunID != "" && c.GitHubRepository != "":
		return fmt.Sprintf("%s/%s/actions/runs/%s", strings.TrimSuffix(c.ServerURL, "/"), c.GitHubRepository, c.GitHubRunID)
	}
	return ""
}

// Validate checks if the required configuration is present
func (c Config) Validate() error {
	switch c.Provider() {
	case ProviderGitHub:
		if c.GitHubToken == "" {
			return fmt.Errorf("missing required environment variable: GITHUB_API_KEY")
		}
	case ProviderGitLab:
		if c.GitLabToken == "" {
			return fmt.Errorf("missing required environment variable: GITLAB_API_KEY")
		}
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("GIT_BOB_MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}

	var key, name string
	switch c.LLMProvider() {
	case "anthropic":
		key, name = c.AnthropicAPIKey, "ANTHROPIC_API_KEY"
	case "openai":
		key, name = c.OpenAIAPIKey, "OPENAI_API_KEY"
	case "gemini", "google":
		key, name = c.GoogleAPIKey, "GOOGLE_API_KEY"
	default:
		return fmt.Errorf("unsupported model %q, want anthropic:, openai: or gemini: prefix", c.LLMName)
	}
	if key == "" {
		return fmt.Errorf("missing required environment variable: %s", name)
	}
	return nil
}
