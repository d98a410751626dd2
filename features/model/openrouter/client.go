// Package openrouter provides an architect.Generator backed by an
// OpenAI-compatible chat completions endpoint (OpenRouter by default). It
// translates system/user prompt pairs into single-shot ChatCompletion calls
// using github.com/sashabaranov/go-openai and returns the first choice's
// message content.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the OpenRouter OpenAI-compatible API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// DefaultTimeout bounds each completion call. The upstream transport has no
// deadline of its own, so an explicit one is always applied.
const DefaultTimeout = 60 * time.Second

// defaultTemperature is the sampling temperature for architect generations.
const defaultTemperature = 0.2

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the OpenRouter adapter.
type Options struct {
	// BaseURL overrides the API root. Defaults to DefaultBaseURL.
	BaseURL string
	// APIKey is the bearer token. It may be empty for unauthenticated
	// gateways; the Authorization header is then omitted.
	APIKey string
	// Model is the model identifier for every call. Required: a missing
	// model is a configuration error surfaced before any call is attempted.
	Model string
	// Temperature overrides the sampling temperature. Defaults to 0.2.
	Temperature float32
	// Timeout overrides the per-call deadline. Defaults to DefaultTimeout.
	Timeout time.Duration
	// RequestsPerSecond enables client-side pacing when positive.
	RequestsPerSecond float64
	// Client overrides the underlying chat client. Used in tests.
	Client ChatClient
}

// Client implements architect.Generator against an OpenAI-compatible API.
type Client struct {
	chat        ChatClient
	model       string
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
}

// New builds the adapter from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Model == "" {
		return nil, errors.New("openrouter: model is not configured")
	}
	chat := opts.Client
	if chat == nil {
		cfg := openai.DefaultConfig(opts.APIKey)
		cfg.BaseURL = DefaultBaseURL
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		chat = openai.NewClientWithConfig(cfg)
	}
	c := &Client{
		chat:        chat,
		model:       opts.Model,
		temperature: defaultTemperature,
		timeout:     DefaultTimeout,
	}
	if opts.Temperature > 0 {
		c.temperature = opts.Temperature
	}
	if opts.Timeout > 0 {
		c.timeout = opts.Timeout
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c, nil
}

// Complete performs one chat completion with the configured model and
// temperature and returns the completion text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("openrouter: rate limit wait: %w", err)
		}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openrouter: completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
