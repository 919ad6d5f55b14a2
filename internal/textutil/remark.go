package textutil

import (
	"fmt"
	"strings"
)

// Remark is the attribution banner appended to everything the agent posts.
type Remark struct {
	AgentName string
	Version   string
	Model     string
	RunURL    string // Link to the CI log, empty outside CI
}

func (r Remark) String() string {
	var sb strings.Builder
	sb.WriteString("\n\n<sup>This message was generated by [")
	sb.WriteString(r.AgentName)
	sb.WriteString("](https://github.com/gitbob/git-bob) (version: ")
	sb.WriteString(r.Version)
	sb.WriteString(", model: ")
	sb.WriteString(r.Model)
	if r.RunURL != "" {
		fmt.Fprintf(&sb, ", log: [run](%s)", r.RunURL)
	}
	sb.WriteString("), an experimental AI-based assistant. It can make mistakes and has ")
	sb.WriteString("[limitations](https://github.com/gitbob/git-bob?tab=readme-ov-file#limitations). ")
	sb.WriteString("Check its messages carefully.</sup>")
	return sb.String()
}

// Sign redacts text and appends the banner. Everything user-visible goes through here.
func (r Remark) Sign(redactor *Redactor, text string) string {
	return redactor.Redact(text) + r.String()
}

// Signed reports whether text carries this agent's banner, i.e. was posted by the agent itself.
func (r Remark) Signed(text string) bool {
	return strings.Contains(text, "<sup>This message was generated by ["+r.AgentName+"]")
}
