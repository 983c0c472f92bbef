package llm

import (
	"context"
	"fmt"
)

// Adapter wraps one provider's request and response shape
type Adapter interface {
	// Complete returns the model's reply text. Failures are reported as *ProviderError.
	Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error)
}

// ProviderError is an adapter failure rendered the way it is shown to users
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("Error calling %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// providerRule holds the static per-provider dispatch rules
type providerRule struct {
	displayName string
	needsKey    bool
	// classified providers consult the ErrorClassifier on failure;
	// the others hand their error text straight back to the caller.
	classified bool
}

var providerRules = map[ProviderName]providerRule{
	ProviderOpenAI:    {displayName: "OpenAI", needsKey: true, classified: true},
	ProviderAnthropic: {displayName: "Anthropic", needsKey: true},
	ProviderGoogle:    {displayName: "Google Gemini", needsKey: true},
	ProviderLMStudio:  {displayName: "LM Studio", classified: true},
}

// DisplayName returns the human readable provider name used in error text
func DisplayName(p ProviderName) string {
	if rule, ok := providerRules[p]; ok {
		return rule.displayName
	}
	return string(p)
}

// credential returns the configured key for p
func (c ProviderConfig) credential(p ProviderName) string {
	switch p {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGoogle:
		return c.GoogleAPIKey
	default:
		return ""
	}
}

// Configured reports whether the active provider can be called at all
func (c ProviderConfig) Configured() bool {
	rule, ok := providerRules[c.Provider]
	if !ok {
		return false
	}
	return !rule.needsKey || c.credential(c.Provider) != ""
}
