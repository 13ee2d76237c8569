package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const instructionPrompt = `You are analyzing media files for a task management system. Based on the attached photos, video frames and transcripts, generate a detailed task description with the following information:

1. Task Title: A clear, concise title for the work needed
2. Summary: A brief 1-2 sentence overview
3. Detailed Description: A comprehensive description of the work required, including:
   - What needs to be done
   - Current condition/problem
   - Recommended approach
   - Materials or tools likely needed
   - Estimated complexity/time
4. Location: If identifiable (e.g., "Kitchen", "Bathroom", "Exterior siding")
5. Professional Type: What type of professional would handle this (e.g., "Plumber", "Electrician", "Handyman", "Carpenter")

Consecutive frames from the same video are adjacent below; read them as one sequence. When a transcript is present, treat the spoken description as ground truth over what you infer visually.

Please respond with ONLY valid JSON in this format:
{
  "title": "...",
  "summary": "...",
  "description": "...",
  "location": "...",
  "professional": "..."
}`

// ErrRateLimited is returned once the bounded retry budget for HTTP 429
// responses is exhausted.
var ErrRateLimited = errors.New("rate limit exceeded - check your OpenAI plan and billing at https://platform.openai.com/account/billing")

// Item is one entry of the ordered multimodal request: either an inline
// image (data URL) with an optional caption, or a plain text fragment such
// as a transcript.
type Item struct {
	ImageURL string
	Caption  string
	Text     string
}

// Fields are the task fields parsed from the model's JSON reply.
type Fields struct {
	Title        string `json:"title"`
	Summary      string `json:"summary"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	Professional string `json:"professional"`
}

// RetryPolicy bounds retries on rate limiting. MaxAttempts counts the
// initial attempt; Backoff maps a zero-based attempt number to the wait
// before the next attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff: func(attempt int) time.Duration {
			return time.Second << attempt
		},
	}
}

type Client struct {
	client      openai.Client
	model       string
	maxTokens   int64
	temperature float64
	retry       RetryPolicy
	sleep       func(time.Duration)
}

// Option configures optional client behavior.
type Option func(*Client, *[]option.RequestOption)

func WithModel(model string) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		if model != "" {
			c.model = model
		}
	}
}

func WithMaxTokens(n int64) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		c.temperature = t
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client, _ *[]option.RequestOption) {
		if p.MaxAttempts > 0 {
			c.retry = p
		}
	}
}

// WithBaseURL points the client at an alternate OpenAI-compatible endpoint.
func WithBaseURL(baseURL string) Option {
	return func(_ *Client, reqOpts *[]option.RequestOption) {
		if baseURL != "" {
			*reqOpts = append(*reqOpts, option.WithBaseURL(baseURL))
		}
	}
}

// NewClient builds the analysis client. A missing API key is a
// configuration error and blocks construction.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}

	c := &Client{
		model:       "gpt-4o-mini",
		maxTokens:   1000,
		temperature: 0.7,
		retry:       DefaultRetryPolicy(),
		sleep:       time.Sleep,
	}

	// Retries on 429 are handled by the explicit policy here, so the SDK's
	// own retry layer is disabled.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c, &reqOpts)
		}
	}

	c.client = openai.NewClient(reqOpts...)
	return c, nil
}

// Analyze sends the ordered media items to the model and parses its JSON
// reply into task fields. Item order is preserved in the request because
// multi-frame video analysis depends on frame/caption adjacency.
func (c *Client) Analyze(ctx context.Context, items []Item) (*Fields, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("no media items to analyze")
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(items)*2+1)
	parts = append(parts, openai.TextContentPart(instructionPrompt))
	for _, item := range items {
		if item.ImageURL != "" {
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: item.ImageURL,
			}))
			if item.Caption != "" {
				parts = append(parts, openai.TextContentPart(item.Caption))
			}
			continue
		}
		if item.Text != "" {
			parts = append(parts, openai.TextContentPart(item.Text))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		MaxTokens:   openai.Int(c.maxTokens),
		Temperature: openai.Float(c.temperature),
	}

	content, err := c.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	fields := &Fields{}
	cleaned := StripCodeFences(content)
	if err := json.Unmarshal([]byte(cleaned), fields); err != nil {
		return nil, fmt.Errorf("model returned malformed JSON: %w", err)
	}
	return fields, nil
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		resp, err := c.client.Chat.Completions.New(ctx, params)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("empty response from model")
			}
			return resp.Choices[0].Message.Content, nil
		}

		if !isRateLimited(err) {
			return "", err
		}
		if attempt == c.retry.MaxAttempts-1 {
			return "", fmt.Errorf("%w: %s", ErrRateLimited, err)
		}

		wait := c.retry.Backoff(attempt)
		log.Printf("Rate limit hit, retrying in %v...", wait)
		c.sleep(wait)
	}
	return "", ErrRateLimited
}

func isRateLimited(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}

// StripCodeFences removes an optional markdown code fence (``` or ```json)
// wrapping the model's reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
