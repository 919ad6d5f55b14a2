// Package ai defines the model capabilities the pipeline uses: text prompts, image description, speech synthesis
// and image generation. Backends live in subpackages.
package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// LLM answers a single text prompt.
type LLM interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

// VisionLLM answers a prompt about an image.
type VisionLLM interface {
	DescribeImage(ctx context.Context, prompt string, image Image) (string, error)
}

// TTS turns text into MP3 audio.
type TTS interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ImageGen paints a PNG from a description.
type ImageGen interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// ErrUnsupported is returned by backends that lack a capability, e.g. audio on a text-only model.
var ErrUnsupported = errors.New("not supported by the configured model")

// Models bundles the model capabilities of one run. Vision, TTS and ImageGen may be nil.
type Models struct {
	Name     string // provider:model, for the attribution banner
	LLM      LLM
	Vision   VisionLLM
	TTS      TTS
	ImageGen ImageGen
}

func (m Models) DescribeImage(ctx context.Context, prompt string, image Image) (string, error) {
	if m.Vision == nil {
		return "", fmt.Errorf("image description: %w", ErrUnsupported)
	}
	return m.Vision.DescribeImage(ctx, prompt, image)
}

func (m Models) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.TTS == nil {
		return nil, fmt.Errorf("speech synthesis: %w", ErrUnsupported)
	}
	return m.TTS.Synthesize(ctx, text)
}

func (m Models) Generate(ctx context.Context, prompt string) ([]byte, error) {
	if m.ImageGen == nil {
		return nil, fmt.Errorf("image generation: %w", ErrUnsupported)
	}
	return m.ImageGen.Generate(ctx, prompt)
}

// Image is an encoded image and its media type.
type Image struct {
	MediaType string
	Data      []byte
}

// ImageFromBytes sniffs the media type of data.
func ImageFromBytes(data []byte) Image {
	return Image{MediaType: http.DetectContentType(data), Data: data}
}

// ParseDataURL decodes a base64 "data:<type>;base64,<data>" URL.
func ParseDataURL(s string) (Image, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return Image{}, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("malformed data URL")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("failed to decode data URL: %w", err)
	}
	return Image{MediaType: mediaType, Data: data}, nil
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL is the form vision endpoints accept inline.
func (i Image) DataURL() string {
	return "data:" + i.MediaType + ";base64," + i.Base64()
}

// LLMFunc adapts a function to LLM.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

func (f LLMFunc) Prompt(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
