package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
)

// AnthropicClient sends prompts through the Anthropic Messages API.
// Works with both direct Anthropic API and Azure AI Foundry.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    string
	cfg       Config
}

// NewAnthropicClient creates a new Anthropic client. SDK-level retries are
// disabled; wrap the result in a RetryingClient to retry.
func NewAnthropicClient(cfg Config) *AnthropicClient {
	opts := []option.RequestOption{option.WithMaxRetries(0)}

	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	for k, v := range cfg.ExtraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultAnthropicModel
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     modelName,
		maxTokens: maxTokensOrDefault(cfg.MaxTokens),
		system:    cfg.System,
		cfg:       cfg,
	}
}

// Provider returns "anthropic".
func (c *AnthropicClient) Provider() string {
	return "anthropic"
}

// Model returns the model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Send delivers the prompt to the Anthropic API.
func (c *AnthropicClient) Send(ctx context.Context, prompt string) (*Completion, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := startSpan(ctx, c.Provider(), c.model, c.maxTokens, c.system, prompt)
	defer span.End()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
	}
	if c.system != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: c.system},
		}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		text.WriteString(block.Text)
	}
	if text.Len() == 0 {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("anthropic API returned empty response")
	}

	completion := &Completion{
		Text:         text.String(),
		FinishReason: string(resp.StopReason),
		Usage:        usageOf(resp.Usage.InputTokens, resp.Usage.OutputTokens),
	}
	recordCompletion(span, c.model, completion)
	return completion, nil
}
