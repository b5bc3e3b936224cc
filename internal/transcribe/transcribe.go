package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcriber converts one recorded audio blob into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// OpenAIClient transcribes uploaded audio via the OpenAI audio API.
type OpenAIClient struct {
	client *openai.Client
	apiKey string
}

func NewOpenAIClient(apiKey string) *OpenAIClient {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIClient{client: &client, apiKey: apiKey}
}

// Configured reports whether an API key is present.
func (c *OpenAIClient) Configured() bool { return c.apiKey != "" }

// extensionFor maps the negotiated upload MIME type to a filename extension
// the transcription API recognizes.
func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "webm"):
		return "webm"
	case strings.Contains(mimeType, "ogg"):
		return "ogg"
	case strings.Contains(mimeType, "mp4"):
		return "mp4"
	case strings.Contains(mimeType, "mpeg"), strings.Contains(mimeType, "mp3"):
		return "mp3"
	default:
		return "wav"
	}
}

// Transcribe sends the audio blob for transcription. Empty input returns an
// empty transcript without a network call, matching the silence contract.
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("openai api key missing")
	}
	if len(audio) == 0 {
		return "", nil
	}

	name := "answer." + extensionFor(mimeType)
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(audio), name, mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("openai transcribe: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// Mock returns a canned transcript for keyless deployments and tests.
type Mock struct {
	Transcript string
}

func (m Mock) Transcribe(_ context.Context, audio []byte, _ string) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}
	if m.Transcript != "" {
		return m.Transcript, nil
	}
	return "This is a mock transcript of the recorded answer.", nil
}
