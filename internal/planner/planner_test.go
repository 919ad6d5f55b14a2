package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/gitbob/git-bob/internal/ai/aitest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []Action
	}{
		{
			name:  "plain",
			reply: `[{"action": "create", "filename": "for_loop.py"}]`,
			want:  []Action{{Kind: Create, Filename: "for_loop.py"}},
		},
		{
			name:  "prose and fences around the list",
			reply: "Here is the plan:\n```json\n[\n  {'action': 'modify', 'filename': '/src/main.py'}\n]\n```\nGood luck!",
			want:  []Action{{Kind: Modify, Filename: "src/main.py"}},
		},
		{
			name: "downloads first",
			reply: `[
				{"action": "create", "filename": "analysis.ipynb"},
				{"action": "download", "source_url": "https://example.com/data.csv", "target_filename": "data.csv"},
				{"action": "delete", "filename": "old.txt"},
				{"action": "download", "source_url": "https://example.com/b.csv", "target_filename": "/b.csv"}
			]`,
			want: []Action{
				{Kind: Download, SourceURL: "https://example.com/data.csv", TargetFilename: "data.csv"},
				{Kind: Download, SourceURL: "https://example.com/b.csv", TargetFilename: "b.csv"},
				{Kind: Create, Filename: "analysis.ipynb"},
				{Kind: Delete, Filename: "old.txt"},
			},
		},
		{
			name:  "svg is written, not painted",
			reply: `[{"action": "paint", "filename": "logo.svg"}, {"action": "create", "filename": "cat.PNG"}]`,
			want:  []Action{{Kind: Create, Filename: "logo.svg"}, {Kind: Paint, Filename: "cat.PNG"}},
		},
		{
			name:  "rename and copy",
			reply: `[{"action": "rename", "old_filename": "a.py", "new_filename": "b.py"}, {"action": "copy", "old_filename": "b.py", "new_filename": "/c.py"}]`,
			want: []Action{
				{Kind: Rename, OldFilename: "a.py", NewFilename: "b.py"},
				{Kind: Copy, OldFilename: "b.py", NewFilename: "c.py"},
			},
		},
		{
			name:  "empty plan",
			reply: `[]`,
			want:  []Action{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.reply)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, reply := range []string{
		"I cannot do that.",
		`[{"action": "explode", "filename": "x"}]`,
		`[{"action": "download", "source_url": "https://example.com/x"}]`,
		`[{"action": "rename", "old_filename": "x"}]`,
		`[{"action": "create"}]`,
	} {
		_, err := Parse(reply)
		require.ErrorIs(t, err, ErrMalformedPlan, reply)
	}
}

func TestSortDownloadsFirst_Stable(t *testing.T) {
	actions := []Action{
		{Kind: Create, Filename: "1"},
		{Kind: Download, TargetFilename: "2"},
		{Kind: Modify, Filename: "3"},
		{Kind: Download, TargetFilename: "4"},
		{Kind: Paint, Filename: "5"},
		{Kind: Download, TargetFilename: "6"},
	}
	SortDownloadsFirst(actions)

	var order []string
	for _, a := range actions {
		order = append(order, a.Paths()[0])
	}
	require.Equal(t, []string{"2", "4", "6", "1", "3", "5"}, order)
}

func TestAction_Paths(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, Action{Kind: Rename, OldFilename: "a", NewFilename: "b"}.Paths())
	require.Equal(t, []string{"t"}, Action{Kind: Download, SourceURL: "u", TargetFilename: "t"}.Paths())
	require.Equal(t, []string{"f"}, Action{Kind: Delete, Filename: "f"}.Paths())
}

func TestPlan(t *testing.T) {
	llm := aitest.NewLLM().On("list of possible actions", `[{"action": "create", "filename": "for_loop.py"}]`)
	p := New(llm)

	actions, err := p.Plan(context.Background(), "Issue title: for-loops", []string{"README.md"})
	require.NoError(t, err)
	require.Equal(t, []Action{{Kind: Create, Filename: "for_loop.py"}}, actions)

	require.Len(t, llm.Prompts, 1)
	require.Contains(t, llm.Prompts[0], "* README.md")
}

func TestPlan_LLMError(t *testing.T) {
	llm := aitest.NewLLM().Fail("", errors.New("overloaded"))
	_, err := New(llm).Plan(context.Background(), "x", nil)
	require.ErrorContains(t, err, "overloaded")
}
