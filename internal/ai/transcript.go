package ai

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"
)

//go:embed transcript.tmpl
var transcriptMarkdownTemplate string

// Exchange is one request to a model and its answer.
type Exchange struct {
	Kind     string        `json:"kind"` // "prompt" or "image"
	Prompt   string        `json:"prompt"`
	Reply    string        `json:"reply,omitempty"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// Transcript collects every exchange with the text models of a run, in order. It is safe for concurrent use.
type Transcript struct {
	mu        sync.Mutex
	Model     string     `json:"model"`
	Exchanges []Exchange `json:"exchanges"`

	now func() time.Time
}

func NewTranscript(model string) *Transcript {
	return &Transcript{Model: model, now: time.Now}
}

// Record returns models whose text and vision models add their exchanges to the transcript. Speech and image
// generation are passed through unchanged.
func (t *Transcript) Record(models Models) Models {
	if models.LLM != nil {
		models.LLM = recordingLLM{next: models.LLM, t: t}
	}
	if models.Vision != nil {
		models.Vision = recordingVision{next: models.Vision, t: t}
	}
	return models
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Exchanges)
}

func (t *Transcript) record(kind, prompt string, started time.Time, reply string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := Exchange{Kind: kind, Prompt: prompt, Reply: reply, Started: started, Duration: t.now().Sub(started)}
	if err != nil {
		e.Error = err.Error()
	}
	t.Exchanges = append(t.Exchanges, e)
}

type recordingLLM struct {
	next LLM
	t    *Transcript
}

func (r recordingLLM) Prompt(ctx context.Context, prompt string) (string, error) {
	started := r.t.now()
	reply, err := r.next.Prompt(ctx, prompt)
	r.t.record("prompt", prompt, started, reply, err)
	return reply, err
}

type recordingVision struct {
	next VisionLLM
	t    *Transcript
}

func (r recordingVision) DescribeImage(ctx context.Context, prompt string, image Image) (string, error) {
	started := r.t.now()
	reply, err := r.next.DescribeImage(ctx, prompt, image)
	r.t.record("image", fmt.Sprintf("%s\n\n(%s image, %d bytes)", prompt, image.MediaType, len(image.Data)), started, reply, err)
	return reply, err
}

// Map returns a copy of the transcript with fn applied to every prompt, reply and error, e.g. to redact secrets.
func (t *Transcript) Map(fn func(string) string) *Transcript {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &Transcript{Model: t.Model, Exchanges: slices.Clone(t.Exchanges), now: t.now}
	for i := range out.Exchanges {
		e := &out.Exchanges[i]
		e.Prompt, e.Reply, e.Error = fn(e.Prompt), fn(e.Reply), fn(e.Error)
	}
	return out
}

// ToMarkdown renders the transcript for reading.
func (t *Transcript) ToMarkdown() (string, error) {
	funcMap := template.FuncMap{
		"add": func(a, b int) int { return a + b },
		"truncateContent": func(content string) string {
			if len(content) > 20000 {
				return content[:20000] + "\n... (content truncated)"
			}
			return content
		},
		"indent": func(prefix string, text string) string {
			var prefixed strings.Builder
			for line := range strings.Lines(text) {
				prefixed.WriteString(prefix)
				prefixed.WriteString(line)
			}
			return prefixed.String()
		},
	}
	tmpl, err := template.New("transcript").Funcs(funcMap).Parse(transcriptMarkdownTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse transcript template: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("failed to render transcript: %w", err)
	}
	return buf.String(), nil
}

// TranscriptStore keeps transcripts in a directory, each as <key>.json and a readable <key>.md.
type TranscriptStore struct {
	dir string // The directory keys will be relative to
}

func NewTranscriptStore(dir string) TranscriptStore {
	return TranscriptStore{dir: dir}
}

// Get returns the transcript stored at key, or nil if there is nothing stored at that key.
func (s TranscriptStore) Get(key string) (*Transcript, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, key+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	t := NewTranscript("")
	if err := json.Unmarshal(b, t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcript: %w", err)
	}
	return t, nil
}

// Set stores t at key, replacing what was there.
func (s TranscriptStore) Set(key string, t *Transcript) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", s.dir, err)
	}
	t.mu.Lock()
	b, err := json.MarshalIndent(t, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal transcript: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, key+".json"), b, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	md, err := t.ToMarkdown()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, key+".md"), []byte(md), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
