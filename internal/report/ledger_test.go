package report

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLedger(t *testing.T) {
	l := NewLedger()
	l.Add("data.csv", "Download data")
	l.Add("analysis.ipynb", "Add analysis (containing error)")
	l.Add("analysis.ipynb", "Fix analysis")

	require.Equal(t, []Entry{
		{Path: "data.csv", Message: "Download data"},
		{Path: "analysis.ipynb", Message: "Fix analysis"},
	}, l.Entries())
	require.Equal(t, 2, l.Len())
	require.True(t, l.Contains("data.csv"))
	require.Equal(t, "* data.csv: Download data\n* analysis.ipynb: Fix analysis\n", l.String())
}

func TestErrorRecord_Markdown(t *testing.T) {
	r := ErrorRecord{Action: "create nb.ipynb", Message: "notebook still fails\nmore", Traceback: "Traceback:\n  NameError\n"}
	require.Equal(t,
		"<details>\n<summary>Error during create nb.ipynb: notebook still fails</summary>\n\n```\nTraceback:\n  NameError\n```\n</details>\n",
		r.Markdown())

	require.Empty(t, ErrorsMarkdown(nil))
	require.Contains(t, ErrorsMarkdown([]ErrorRecord{r}), "The following errors occurred:")
}
