// Package claude provides the Claude-backed completion provider for the
// generative classification stage.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultModel is used when no model is configured.
const DefaultModel = string(anthropic.ModelClaudeSonnet4_5)

// maxTokens bounds a single classification reply. Replies are one small
// JSON object; anything longer is a malformed answer anyway.
const maxTokens = 256

// Client wraps the Anthropic SDK. Implements the completion provider used
// by the generative classifier.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// Option customizes the Client.
type Option func(*options)

type options struct {
	requestOpts []option.RequestOption
}

// WithBaseURL points the client at an alternate API endpoint. Used in tests.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.requestOpts = append(o.requestOpts, option.WithBaseURL(url))
	}
}

// WithMaxRetries overrides the SDK retry count.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		o.requestOpts = append(o.requestOpts, option.WithMaxRetries(n))
	}
}

// New creates a Claude client with the given API key and model name.
func New(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	reqOpts := append([]option.RequestOption{option.WithAPIKey(apiKey)}, o.requestOpts...)
	return &Client{
		client: anthropic.NewClient(reqOpts...),
		model:  anthropic.Model(model),
	}
}

// Complete sends a single-turn prompt and returns the text of the reply.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("claude returned no text content (stop_reason=%s)", msg.StopReason)
	}
	return text, nil
}
