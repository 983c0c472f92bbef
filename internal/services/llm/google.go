package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGoogleModel = "gemini-pro"

// GoogleAdapter calls Gemini through a single text generation request
type GoogleAdapter struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewGoogleAdapter creates an adapter for apiKey
func NewGoogleAdapter(apiKey, model string, timeout time.Duration) *GoogleAdapter {
	if model == "" {
		model = defaultGoogleModel
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &GoogleAdapter{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete flattens the prompt and history into one block and generates a reply
func (a *GoogleAdapter) Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     a.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	})
	if err != nil {
		return "", &ProviderError{Provider: DisplayName(ProviderGoogle), Err: fmt.Errorf("creating client: %w", err)}
	}

	res, err := client.Models.GenerateContent(ctx, a.model, genai.Text(flattenPrompt(history, systemPrompt)), nil)
	if err != nil {
		return "", &ProviderError{Provider: DisplayName(ProviderGoogle), Err: err}
	}

	text := res.Text()
	if text == "" {
		return "", &ProviderError{Provider: DisplayName(ProviderGoogle), Err: errors.New("empty response")}
	}
	return text, nil
}

// flattenPrompt renders the conversation as "User:" / "Assistant:" lines
func flattenPrompt(history []Turn, systemPrompt string) string {
	parts := make([]string, 0, len(history)+1)
	if systemPrompt != "" {
		parts = append(parts, systemPrompt)
	}
	for _, t := range history {
		switch t.Role {
		case RoleUser:
			parts = append(parts, "User: "+t.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+t.Content)
		}
	}
	return strings.Join(parts, "\n")
}
