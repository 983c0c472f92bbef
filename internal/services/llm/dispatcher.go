package llm

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog/log"
)

// Dispatcher is the single entry point for LLM calls. It picks the configured
// provider, classifies failures and degrades to FallbackResponder.
type Dispatcher struct {
	cfg      ProviderConfig
	adapters map[ProviderName]Adapter
	fallback FallbackResponder
}

// Option customizes a Dispatcher
type Option func(*Dispatcher)

// WithAdapter installs a for provider p instead of the SDK-backed default
func WithAdapter(p ProviderName, a Adapter) Option {
	return func(d *Dispatcher) {
		d.adapters[p] = a
	}
}

// NewDispatcher creates a Dispatcher for cfg. Only the active provider's
// adapter is built; cfg is never consulted again for anything but routing.
func NewDispatcher(cfg ProviderConfig, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		adapters: make(map[ProviderName]Adapter),
	}
	for _, opt := range opts {
		opt(d)
	}

	if _, ok := d.adapters[cfg.Provider]; !ok && cfg.Configured() {
		if a := newAdapter(cfg); a != nil {
			d.adapters[cfg.Provider] = a
		}
	}

	log.Info().
		Str("provider", string(cfg.Provider)).
		Bool("configured", cfg.Configured()).
		Msg("LLM dispatcher initialized")

	return d
}

func newAdapter(cfg ProviderConfig) Adapter {
	timeout := cfg.timeout()
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIModel, timeout)
	case ProviderAnthropic:
		return NewAnthropicAdapter(cfg.AnthropicAPIKey, cfg.AnthropicModel, timeout)
	case ProviderGoogle:
		return NewGoogleAdapter(cfg.GoogleAPIKey, cfg.GoogleModel, timeout)
	case ProviderLMStudio:
		return NewLMStudioAdapter(cfg.LMStudioBaseURL, cfg.LMStudioModel, timeout)
	default:
		return nil
	}
}

// Dispatch sends history to the configured provider and always returns a
// non-empty reply: the model's text, a provider error message, or the fallback.
func (d *Dispatcher) Dispatch(ctx context.Context, history []Turn, systemPrompt string) (reply string) {
	provider := d.cfg.Provider
	logger := log.With().Str("provider", string(provider)).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("LLM call panicked, using fallback")
			reply = d.fallback.Respond(history)
		}
	}()

	if !d.cfg.Configured() {
		logger.Debug().Msg("No usable provider configured, using fallback")
		return d.fallback.Respond(history)
	}

	adapter, ok := d.adapters[provider]
	if !ok {
		logger.Warn().Msg("No adapter registered for provider, using fallback")
		return d.fallback.Respond(history)
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.timeout())
	defer cancel()

	text, err := adapter.Complete(callCtx, history, systemPrompt)
	if err != nil {
		var providerErr *ProviderError
		if !errors.As(err, &providerErr) {
			logger.Warn().Err(err).Msg("Unclassified provider failure, using fallback")
			return d.fallback.Respond(history)
		}

		errText := providerErr.Error()
		if providerRules[provider].classified && IsFallbackEligible(errText) {
			logger.Warn().Err(err).Msg("Provider unavailable, using fallback")
			return d.fallback.Respond(history)
		}

		logger.Warn().Err(err).Msg("Provider call failed")
		return errText
	}

	if strings.TrimSpace(text) == "" {
		logger.Warn().Msg("Provider returned an empty reply, using fallback")
		return d.fallback.Respond(history)
	}

	return text
}
