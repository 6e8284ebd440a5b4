package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rajshirolkar/evaluation-copilot/internal/model"
)

// OpenAIClient sends prompts through an OpenAI-compatible Chat Completions API.
// Works with OpenAI, Azure OpenAI, and any OpenAI-compatible endpoint.
type OpenAIClient struct {
	client    openai.Client
	model     string
	maxTokens int64
	system    string
	cfg       Config
}

// NewOpenAIClient creates a new OpenAI-compatible client. SDK-level retries
// are disabled; wrap the result in a RetryingClient to retry.
func NewOpenAIClient(cfg Config) *OpenAIClient {
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
		modelName = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:    openai.NewClient(opts...),
		model:     modelName,
		maxTokens: maxTokensOrDefault(cfg.MaxTokens),
		system:    cfg.System,
		cfg:       cfg,
	}
}

// Provider returns "openai".
func (c *OpenAIClient) Provider() string {
	return "openai"
}

// Model returns the model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Send delivers the prompt to an OpenAI-compatible API.
func (c *OpenAIClient) Send(ctx context.Context, prompt string) (*Completion, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ctx, span := startSpan(ctx, c.Provider(), c.model, c.maxTokens, c.system, prompt)
	defer span.End()

	var messages []openai.ChatCompletionMessageParamUnion
	if c.system != "" {
		messages = append(messages, openai.SystemMessage(c.system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, fmt.Errorf("openai API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		span.SetAttributes(attribute.String("error.type", "empty_response"))
		return nil, fmt.Errorf("openai API returned empty response")
	}

	completion := &Completion{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage:        usageOf(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}
	span.SetAttributes(attribute.String("gen_ai.response.id", resp.ID))
	recordCompletion(span, resp.Model, completion)
	return completion, nil
}

func usageOf(input, output int64) model.TokenUsage {
	return model.TokenUsage{InputTokens: input, OutputTokens: output}
}
