package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/textutil"
)

// ErrMalformedPlan is returned when the model's reply cannot be turned into a list of valid actions.
var ErrMalformedPlan = errors.New("malformed plan")

type Planner struct {
	llm ai.LLM
}

func New(llm ai.LLM) *Planner {
	return &Planner{llm: llm}
}

// Plan asks the model for the actions that solve the discussed issue, given the files currently on the branch.
func (p *Planner) Plan(ctx context.Context, discussion string, files []string) ([]Action, error) {
	prompt, err := ai.RenderPrompt("plan.tmpl", ai.PlanData{Discussion: discussion, Files: files})
	if err != nil {
		return nil, err
	}
	reply, err := p.llm.Prompt(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to prompt for a plan: %w", err)
	}

	actions, err := Parse(reply)
	if err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("actions", len(actions)).Infof("planned %v", actions)
	return actions, nil
}

// Parse decodes, validates, normalizes and orders the actions in a model reply.
func Parse(reply string) ([]Action, error) {
	var actions []Action
	if err := textutil.TextToJSON(reply, &actions); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPlan, err)
	}
	for i, a := range actions {
		a = a.Normalize()
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("%w: action %d: %w", ErrMalformedPlan, i, err)
		}
		actions[i] = a
	}
	SortDownloadsFirst(actions)
	return actions, nil
}
