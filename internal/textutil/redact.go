package textutil

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/zricethezav/gitleaks/v8/detect"
)

const redacted = "***"

// Redactor replaces secret values in text before it leaves the process, either as a commit or as a comment.
type Redactor struct {
	secrets  []string
	detector *detect.Detector // May be nil
}

// NewRedactor collects the current values of the given environment variables. Unset and empty variables are skipped.
func NewRedactor(keys []string) *Redactor {
	var secrets []string
	for _, key := range keys {
		if v := os.Getenv(key); strings.Trim(v, "*") != "" {
			secrets = append(secrets, v)
		}
	}
	return newRedactor(secrets)
}

func newRedactor(secrets []string) *Redactor {
	secrets = slices.Clone(secrets)
	// Longest first, so a secret that contains another one is replaced whole
	slices.SortFunc(secrets, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	return &Redactor{secrets: slices.Compact(secrets)}
}

// WithPatternScan additionally redacts anything gitleaks' default rules recognise as a credential, e.g. tokens pasted
// into an issue by a user.
func (r *Redactor) WithPatternScan() (*Redactor, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret detector: %w", err)
	}
	return &Redactor{secrets: r.secrets, detector: d}, nil
}

// Redact returns text with every known secret replaced by "***".
func (r *Redactor) Redact(text string) string {
	if r == nil {
		return text
	}
	// Replacing one secret can in theory produce another, so repeat until stable
	for range len(r.secrets) + 1 {
		before := text
		for _, s := range r.secrets {
			text = strings.ReplaceAll(text, s, redacted)
		}
		if text == before {
			break
		}
	}

	if r.detector != nil {
		for _, f := range r.detector.DetectString(text) {
			if strings.Trim(f.Secret, "*") != "" {
				text = strings.ReplaceAll(text, f.Secret, redacted)
			}
		}
	}
	return text
}
