// Package aitest provides scripted model fakes for tests.
package aitest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gitbob/git-bob/internal/ai"
)

// Rule answers prompts containing Match with Reply, in order of declaration.
type Rule struct {
	Match string
	Reply string
	Err   error
}

// LLM replies according to the first rule whose Match occurs in the prompt. Rules with Times > 0 are used up.
type LLM struct {
	mu      sync.Mutex
	rules   []*rule
	Prompts []string
}

type rule struct {
	Rule
	times int // 0 means unlimited
}

func NewLLM() *LLM {
	return &LLM{}
}

// On adds a rule that answers forever.
func (l *LLM) On(match, reply string) *LLM {
	return l.OnN(match, reply, 0)
}

// OnN adds a rule that answers n times.
func (l *LLM) OnN(match, reply string, n int) *LLM {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append(l.rules, &rule{Rule: Rule{Match: match, Reply: reply}, times: n})
	return l
}

// Fail adds a rule that returns err.
func (l *LLM) Fail(match string, err error) *LLM {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rules = append(l.rules, &rule{Rule: Rule{Match: match, Err: err}})
	return l
}

func (l *LLM) Prompt(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Prompts = append(l.Prompts, prompt)
	for i, r := range l.rules {
		if !strings.Contains(prompt, r.Match) {
			continue
		}
		if r.times > 0 {
			r.times--
			if r.times == 0 {
				l.rules = append(l.rules[:i:i], l.rules[i+1:]...)
			}
		}
		return r.Reply, r.Err
	}
	return "", fmt.Errorf("no scripted reply for prompt starting %q", head(prompt))
}

// PromptsContaining returns the recorded prompts that contain s.
func (l *LLM) PromptsContaining(s string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, p := range l.Prompts {
		if strings.Contains(p, s) {
			out = append(out, p)
		}
	}
	return out
}

func head(s string) string {
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

// Vision describes every image with the same text.
type Vision string

func (v Vision) DescribeImage(context.Context, string, ai.Image) (string, error) {
	return string(v), nil
}

// Bytes returns the same payload for every TTS or image generation request.
type Bytes []byte

func (b Bytes) Synthesize(context.Context, string) ([]byte, error) { return b, nil }
func (b Bytes) Generate(context.Context, string) ([]byte, error)   { return b, nil }

var (
	_ ai.LLM       = (*LLM)(nil)
	_ ai.VisionLLM = Vision("")
	_ ai.TTS       = Bytes(nil)
	_ ai.ImageGen  = Bytes(nil)
)
