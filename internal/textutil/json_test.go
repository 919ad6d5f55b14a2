package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	Action   string `json:"action"`
	Filename string `json:"filename"`
}

func TestTextToJSON_Wrapped(t *testing.T) {
	text := "Sure, here is the plan:\n```json\n[{\"action\": \"create\", \"filename\": \"a.py\"}]\n```\nDone."
	var got []item
	require.NoError(t, TextToJSON(text, &got))
	require.Equal(t, []item{{Action: "create", Filename: "a.py"}}, got)
}

func TestTextToJSON_SingleQuotes(t *testing.T) {
	var got []item
	require.NoError(t, TextToJSON("[{'action': 'delete', 'filename': 'old.txt'}]", &got))
	require.Equal(t, []item{{Action: "delete", Filename: "old.txt"}}, got)
}

func TestTextToJSON_ControlCharacters(t *testing.T) {
	var got []item
	require.NoError(t, TextToJSON("[{\"action\":\t\"modify\",\r\n\"filename\": \"b.md\"}]\x00", &got))
	require.Equal(t, []item{{Action: "modify", Filename: "b.md"}}, got)
}

func TestTextToJSON_Repair(t *testing.T) {
	var got []item
	require.NoError(t, TextToJSON(`[{"action": "create", "filename": "c.py",}]`, &got))
	require.Equal(t, []item{{Action: "create", Filename: "c.py"}}, got)
}

func TestTextToJSON_NoArray(t *testing.T) {
	var got []item
	require.Error(t, TextToJSON("I could not come up with a plan", &got))
}
