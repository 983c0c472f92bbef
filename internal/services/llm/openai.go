package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	defaultOpenAIModel = "gpt-3.5-turbo"
	defaultTemperature = 0.7
	defaultMaxTokens   = 1000
)

// openAIQuotaMessage replaces raw quota failures so callers get actionable text
const openAIQuotaMessage = "You have exceeded your API quota. Please check your OpenAI billing and plan. " +
	"Consider using LM Studio for local testing or switch to another provider."

// OpenAIAdapter calls the OpenAI chat completions API
type OpenAIAdapter struct {
	client openai.Client
	apiKey string
	model  string
}

// NewOpenAIAdapter creates an adapter for apiKey. Extra options are applied last,
// which lets tests point the client at a local server.
func NewOpenAIAdapter(apiKey, model string, timeout time.Duration, opts ...option.RequestOption) *OpenAIAdapter {
	if model == "" {
		model = defaultOpenAIModel
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	clientOpts = append(clientOpts, opts...)

	return &OpenAIAdapter{
		client: openai.NewClient(clientOpts...),
		apiKey: apiKey,
		model:  model,
	}
}

// Complete sends the history, with the system prompt prepended, as a chat completion
func (a *OpenAIAdapter) Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error) {
	if a.apiKey == "" {
		return "OpenAI API key is not configured. Please set OPENAI_API_KEY in your environment.", nil
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       a.model,
		Messages:    toOpenAIMessages(history, systemPrompt),
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	})
	if err != nil {
		if isQuotaError(err) {
			err = errors.New(openAIQuotaMessage)
		}
		return "", &ProviderError{Provider: DisplayName(ProviderOpenAI), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &ProviderError{Provider: DisplayName(ProviderOpenAI), Err: errors.New("no choices returned")}
	}

	return completion.Choices[0].Message.Content, nil
}

// isQuotaError reports whether err is a rate limit or billing quota failure
func isQuotaError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := err.Error()
	return strings.Contains(strings.ToLower(msg), "quota") || strings.Contains(msg, "429")
}

// toOpenAIMessages converts turns to the SDK union type, system prompt first
func toOpenAIMessages(history []Turn, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, openai.SystemMessage(systemPrompt))
	}
	for _, t := range history {
		switch t.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(t.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Content))
		default:
			out = append(out, openai.UserMessage(t.Content))
		}
	}
	return out
}
