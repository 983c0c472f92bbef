package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicModel  = "claude-3-sonnet-20240229"
	defaultAnthropicSystem = "You are a helpful AI assistant."
)

// AnthropicAdapter calls the Anthropic messages API
type AnthropicAdapter struct {
	client anthropic.Client
	model  string
}

// NewAnthropicAdapter creates an adapter for apiKey
func NewAnthropicAdapter(apiKey, model string, timeout time.Duration, opts ...anthropicoption.RequestOption) *AnthropicAdapter {
	if model == "" {
		model = defaultAnthropicModel
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	clientOpts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithHTTPClient(&http.Client{Timeout: timeout}),
		anthropicoption.WithRequestTimeout(timeout),
		anthropicoption.WithMaxRetries(0),
	}
	clientOpts = append(clientOpts, opts...)

	return &AnthropicAdapter{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
	}
}

// Complete sends user and assistant turns with the system prompt in its own field
func (a *AnthropicAdapter) Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error) {
	if systemPrompt == "" {
		systemPrompt = defaultAnthropicSystem
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: defaultMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  toAnthropicMessages(history),
	})
	if err != nil {
		return "", &ProviderError{Provider: DisplayName(ProviderAnthropic), Err: err}
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &ProviderError{Provider: DisplayName(ProviderAnthropic), Err: errors.New("response contained no text")}
}

// toAnthropicMessages drops system turns; the system prompt travels separately
func toAnthropicMessages(history []Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case RoleSystem:
			continue
		case RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return out
}
