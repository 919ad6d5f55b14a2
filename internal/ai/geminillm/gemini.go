// Package geminillm implements the text and vision model capabilities on the Gemini API.
package geminillm

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/transport"
)

type Client struct {
	client *genai.Client
	model  string
}

// New creates a client for model. baseURL is only set in tests.
func New(ctx context.Context, apiKey, model, baseURL string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Transport: transport.WithRateLimiting(nil)},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{client: client, model: model}, nil
}

func (c *Client) generate(ctx context.Context, parts ...*genai.Part) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return resp.Text(), nil
}

func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, genai.NewPartFromText(prompt))
}

func (c *Client) DescribeImage(ctx context.Context, prompt string, image ai.Image) (string, error) {
	return c.generate(ctx, genai.NewPartFromBytes(image.Data, image.MediaType), genai.NewPartFromText(prompt))
}

var (
	_ ai.LLM       = (*Client)(nil)
	_ ai.VisionLLM = (*Client)(nil)
)
