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

const defaultLMStudioBaseURL = "http://localhost:1234/v1"

const lmStudioModelGuidance = "LM Studio is running, but no model ID is configured. " +
	"Please set LM_STUDIO_MODEL (e.g., openai/gpt-oss-20b) to match the model loaded in LM Studio."

// LMStudioAdapter talks to a local OpenAI-compatible server such as LM Studio
type LMStudioAdapter struct {
	client openai.Client
	model  string
}

// NewLMStudioAdapter creates an adapter for the server at baseURL
func NewLMStudioAdapter(baseURL, model string, timeout time.Duration, opts ...option.RequestOption) *LMStudioAdapter {
	if baseURL == "" {
		baseURL = defaultLMStudioBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(strings.TrimRight(baseURL, "/") + "/"),
		// local servers ignore the key but the SDK always sends one
		option.WithAPIKey("lm-studio"),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	clientOpts = append(clientOpts, opts...)

	return &LMStudioAdapter{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
}

// Complete posts an OpenAI-style chat completion to the local server
func (a *LMStudioAdapter) Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error) {
	if a.model == "" || a.model == PlaceholderLMStudioModel {
		return lmStudioModelGuidance, nil
	}

	completion, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       a.model,
		Messages:    toOpenAIMessages(history, systemPrompt),
		Temperature: openai.Float(defaultTemperature),
		MaxTokens:   openai.Int(defaultMaxTokens),
	})
	if err != nil {
		return "", &ProviderError{Provider: DisplayName(ProviderLMStudio), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &ProviderError{Provider: DisplayName(ProviderLMStudio), Err: errors.New("no choices returned")}
	}

	return completion.Choices[0].Message.Content, nil
}
