package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const (
	defaultModel = "gpt-4o-mini"

	// Conservative client-side limit so background compilation and link
	// inference cannot exhaust provider quota.
	defaultRateLimit = 2 // requests per second
	defaultBurst     = 4
)

// OpenAI implements Completer using OpenAI's chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAI creates an OpenAI completer. An empty model uses the
// default; a non-empty baseURL points the client at an OpenAI-compatible
// endpoint such as a local inference server.
func NewOpenAI(apiKey, model, baseURL string) *OpenAI {
	if model == "" {
		model = defaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
	}
}

// Complete sends the system prompt and messages and returns the first
// choice's text.
func (o *OpenAI) Complete(ctx context.Context, systemPrompt string, messages []Message) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	chat := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		chat = append(chat, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		chat = append(chat, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    chat,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("openai completion error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Available returns true: the client is configured.
func (o *OpenAI) Available() bool { return true }

// Model returns the model name.
func (o *OpenAI) Model() string { return o.model }

var _ Completer = (*OpenAI)(nil)
