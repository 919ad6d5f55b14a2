// Package anthropicllm implements the text and vision model capabilities on Claude.
package anthropicllm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/chainguard-dev/clog"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/transport"
)

const defaultMaxTokens = 16384

type Client struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

func New(apiKey string, model string) *Client {
	rateLimitedHTTPClient := &http.Client{
		Transport: transport.WithRateLimiting(nil),
	}
	client := anthropic.NewClient(
		option.WithHTTPClient(rateLimitedHTTPClient),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(5),
	)
	return NewFromClient(client, model)
}

func NewFromClient(client anthropic.Client, model string) *Client {
	return &Client{client: client, model: anthropic.Model(model), maxTokens: defaultMaxTokens}
}

func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	return c.send(ctx, anthropic.NewTextBlock(prompt))
}

func (c *Client) DescribeImage(ctx context.Context, prompt string, image ai.Image) (string, error) {
	return c.send(ctx,
		anthropic.NewImageBlockBase64(image.MediaType, image.Base64()),
		anthropic.NewTextBlock(prompt),
	)
}

func (c *Client) send(ctx context.Context, blocks ...anthropic.ContentBlockParamUnion) (string, error) {
	response, err := c.sendMessage(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	if response.StopReason == anthropic.StopReasonMaxTokens {
		clog.FromContext(ctx).With("model", string(c.model)).Warn("Response truncated at max tokens")
	}
	return sb.String(), nil
}

// sendMessage streams the response, which keeps long generations from hitting request timeouts.
func (c *Client) sendMessage(ctx context.Context, params anthropic.MessageNewParams) (anthropic.Message, error) {
	stream := c.client.Messages.NewStreaming(ctx, params)
	response := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		err := response.Accumulate(event)
		if err != nil {
			return anthropic.Message{}, fmt.Errorf("failed to accumulate response content stream: %w", err)
		}
	}
	if stream.Err() != nil {
		return anthropic.Message{}, fmt.Errorf("failed to stream response: %w", stream.Err())
	}
	if response.StopReason == "" {
		b, err := json.Marshal(response)
		if err != nil {
			clog.FromContext(ctx).Errorf("error while marshalling corrupt message for inspection: %v", err)
		}
		return anthropic.Message{}, fmt.Errorf("malformed message: %v", string(b))
	}
	return response, nil
}

var (
	_ ai.LLM       = (*Client)(nil)
	_ ai.VisionLLM = (*Client)(nil)
)
