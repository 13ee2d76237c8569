package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"taskcreator/pkg/media"
)

// Client sends audio or video content to the hosted speech-to-text API.
// A single attempt per file: failures surface to the caller, which treats
// a missing transcript as non-fatal for the overall task.
type Client struct {
	client   openai.Client
	model    openai.AudioModel
	language string
}

type Option func(*Client, *[]option.RequestOption)

// WithLanguage sets the language hint passed to the transcription service.
func WithLanguage(lang string) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		if lang != "" {
			c.language = lang
		}
	}
}

func WithBaseURL(baseURL string) Option {
	return func(_ *Client, reqOpts *[]option.RequestOption) {
		if baseURL != "" {
			*reqOpts = append(*reqOpts, option.WithBaseURL(baseURL))
		}
	}
}

func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	c := &Client{
		model:    openai.AudioModelWhisper1,
		language: "en",
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		if opt != nil {
			opt(c, &reqOpts)
		}
	}

	c.client = openai.NewClient(reqOpts...)
	return c, nil
}

// Transcribe sends the file once and returns the plain-text transcript.
func (c *Client) Transcribe(ctx context.Context, name string, data []byte) (string, error) {
	resp, err := c.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model:    c.model,
		File:     openai.File(bytes.NewReader(data), name, mimeFor(name)),
		Language: openai.String(c.language),
	})
	if err != nil {
		return "", fmt.Errorf("transcribe %s: %w", name, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func mimeFor(name string) string {
	if format := media.DetectAudioFormat(name); format != "" {
		return media.MimeType(media.KindAudio, format)
	}
	if format := media.DetectVideoFormat(name); format != "" {
		return media.MimeType(media.KindVideo, format)
	}
	return "application/octet-stream"
}
