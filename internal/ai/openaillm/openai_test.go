package openaillm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New("sk-test", "gpt-4o", option.WithBaseURL(srv.URL+"/v1/"), option.WithMaxRetries(0))
}

func TestPrompt(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "c1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "hello there"},
			}},
		})
	})
	c := newTestClient(t, mux)

	got, err := c.Prompt(context.Background(), "say hello")
	require.NoError(t, err)
	require.Equal(t, "hello there", got)
}

func TestGenerate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/images/generations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": 1,
			"data":    []map[string]any{{"b64_json": base64.StdEncoding.EncodeToString([]byte("PNGDATA"))}},
		})
	})
	c := newTestClient(t, mux)

	got, err := c.Generate(context.Background(), "a cat")
	require.NoError(t, err)
	require.Equal(t, []byte("PNGDATA"), got)
}

func TestSynthesize(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/audio/speech", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3"))
	})
	c := newTestClient(t, mux)

	got, err := c.Synthesize(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []byte("ID3"), got)
}
