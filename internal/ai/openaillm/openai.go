// Package openaillm implements every model capability on the OpenAI API: chat completions for text and vision,
// speech for TTS and DALL-E for image generation.
package openaillm

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/gitbob/git-bob/internal/ai"
	"github.com/gitbob/git-bob/internal/transport"
)

type Client struct {
	client openai.Client
	model  string
}

// New creates a client for model. Extra options are appended, e.g. option.WithBaseURL for compatible endpoints.
func New(apiKey string, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{
		option.WithHTTPClient(&http.Client{Transport: transport.WithRateLimiting(nil)}),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(5),
	}, opts...)
	return &Client{client: openai.NewClient(opts...), model: model}
}

func (c *Client) complete(ctx context.Context, message openai.ChatCompletionMessageParamUnion) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{message},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, openai.UserMessage(prompt))
}

func (c *Client) DescribeImage(ctx context.Context, prompt string, image ai.Image) (string, error) {
	return c.complete(ctx, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: image.DataURL()}),
	}))
}

func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := c.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoiceAlloy,
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModelDallE3,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		Size:           openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image generation returned no images")
	}
	return base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
}

var (
	_ ai.LLM       = (*Client)(nil)
	_ ai.VisionLLM = (*Client)(nil)
	_ ai.TTS       = (*Client)(nil)
	_ ai.ImageGen  = (*Client)(nil)
)
