package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chainguard-dev/clog"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/ai/anthropicllm"
	"github.com/gitbob/git-bob/internal/ai/geminillm"
	"github.com/gitbob/git-bob/internal/ai/openaillm"
	"github.com/gitbob/git-bob/internal/bot"
	"github.com/gitbob/git-bob/internal/config"
	"github.com/gitbob/git-bob/internal/docconv"
	"github.com/gitbob/git-bob/internal/envguard"
	"github.com/gitbob/git-bob/internal/gitops"
	"github.com/gitbob/git-bob/internal/gitops/githubops"
	"github.com/gitbob/git-bob/internal/gitops/gitlabops"
	"github.com/gitbob/git-bob/internal/ignore"
	"github.com/gitbob/git-bob/internal/notebook"
	"github.com/gitbob/git-bob/internal/telemetry"
	"github.com/gitbob/git-bob/internal/textutil"
	"github.com/gitbob/git-bob/internal/workspace"
)

func createGitClient(ctx context.Context, c config.Config) (gitops.Client, error) {
	switch c.Provider() {
	case config.ProviderGitLab:
		return gitlabops.New(c.GitLabToken, c.ServerURL)
	default:
		return githubops.New(ctx, c.GitHubToken, c.ServerURL)
	}
}

// createModels builds the text model named in the config. Speech and image generation need OpenAI and are only
// available when an OpenAI key is configured.
func createModels(ctx context.Context, c config.Config) (ai.Models, error) {
	models := ai.Models{Name: c.LLMName}
	switch c.LLMProvider() {
	case "anthropic":
		llm := anthropicllm.New(c.AnthropicAPIKey, c.LLMModel())
		models.LLM, models.Vision = llm, llm
	case "openai":
		llm := openaillm.New(c.OpenAIAPIKey, c.LLMModel())
		models.LLM, models.Vision = llm, llm
	case "gemini", "google":
		llm, err := geminillm.New(ctx, c.GoogleAPIKey, c.LLMModel(), "")
		if err != nil {
			return ai.Models{}, err
		}
		models.LLM, models.Vision = llm, llm
	default:
		return ai.Models{}, fmt.Errorf("unsupported model %q", c.LLMName)
	}

	if c.OpenAIAPIKey != "" {
		media := openaillm.New(c.OpenAIAPIKey, c.LLMModel())
		models.TTS, models.ImageGen = media, media
	} else {
		clog.FromContext(ctx).Debug("OPENAI_API_KEY not set, speech and image generation are unavailable")
	}
	return models, nil
}

func createTelemetryProvider(ctx context.Context, c config.Config) (*telemetry.Provider, error) {
	return telemetry.NewProvider(ctx, telemetry.TelemetryConfig{
		Enabled:  c.TelemetryEnabled,
		Endpoint: c.TelemetryEndpoint,
		Version:  version,
	})
}

// setup wires a bot from the configuration. The returned function flushes telemetry and saves the model transcript
// under key, if transcripts are enabled.
func setup(ctx context.Context, c config.Config, key string) (*bot.Bot, gitops.Client, func(), error) {
	if err := c.Validate(); err != nil {
		return nil, nil, nil, err
	}

	git, err := createGitClient(ctx, c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create %s client: %w", c.Provider(), err)
	}
	models, err := createModels(ctx, c)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}
	tp, err := createTelemetryProvider(ctx, c)
	if err != nil {
		return nil, nil, nil, err
	}
	redactor, err := textutil.NewRedactor(c.SensitiveEnvKeys()).WithPatternScan()
	if err != nil {
		return nil, nil, nil, err
	}

	var transcript *ai.Transcript
	if c.TranscriptDir != "" {
		transcript = ai.NewTranscript(c.LLMName)
		models = transcript.Record(models)
	}
	shutdown := func() {
		log := clog.FromContext(ctx)
		if transcript != nil {
			store := ai.NewTranscriptStore(c.TranscriptDir)
			if err := store.Set(key+"-"+telemetry.NewRunID(), transcript.Map(redactor.Redact)); err != nil {
				log.Warnf("failed to save transcript: %v", err)
			}
		}
		if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warnf("failed to flush telemetry: %v", err)
		}
	}

	dir, err := workspace.New(c.WorkDir)
	if err != nil {
		shutdown()
		return nil, nil, nil, err
	}

	runner := &notebook.Runner{
		Exec:        notebook.JupyterExecutor{Binary: c.JupyterBinary, CellTimeout: c.CellTimeout},
		LLM:         models.LLM,
		Dir:         dir,
		Guard:       envguard.New(c.SensitiveEnvKeys()),
		Git:         git,
		Files:       git,
		Ignore:      ignore.New(git),
		Redactor:    redactor,
		Telemetry:   tp,
		MaxAttempts: c.MaxAttempts,
	}

	b := bot.New(git, models, bot.Options{
		Remark: textutil.Remark{
			AgentName: c.AgentName,
			Version:   version,
			Model:     c.LLMName,
			RunURL:    c.RunURL(),
		},
		Redactor:    redactor,
		Telemetry:   tp,
		Documents:   docconv.New(c.PandocBinary, c.PptxTemplate),
		Notebooks:   runner,
		Local:       dir,
		MaxAttempts: c.MaxAttempts,
	})
	return b, git, shutdown, nil
}

// transcriptKey names the transcript of a run on repo and issue, e.g. "owner-name-12".
func transcriptKey(repo string, number int) string {
	return fmt.Sprintf("%s-%d", strings.ReplaceAll(repo, "/", "-"), number)
}

// parseIssueNumber accepts "12", "#12" and "!12".
func parseIssueNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimLeft(s, "#!"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid issue number %q", s)
	}
	return n, nil
}

// resolveIssue decides whether the number is an issue or a pull request. GitLab numbers the two independently, so
// there the caller has to say when a merge request is meant.
func resolveIssue(ctx context.Context, git gitops.Client, repo string, number int, mergeRequest bool) (gitops.Issue, error) {
	if mergeRequest {
		return gitops.Issue{Number: number, PullRequest: true}, nil
	}
	return git.ResolveIssue(ctx, repo, number)
}
