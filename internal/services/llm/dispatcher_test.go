package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	reply string
	err   error
	panic bool

	calls       int
	history     []Turn
	system      string
	hadDeadline bool
}

func (f *fakeAdapter) Complete(ctx context.Context, history []Turn, systemPrompt string) (string, error) {
	f.calls++
	f.history = history
	f.system = systemPrompt
	_, f.hadDeadline = ctx.Deadline()
	if f.panic {
		panic("adapter blew up")
	}
	return f.reply, f.err
}

func userTurns(content string) []Turn {
	return []Turn{{Role: RoleUser, Content: content}}
}

func TestDispatch_ReturnsModelReply(t *testing.T) {
	fake := &fakeAdapter{reply: "hello there"}
	d := NewDispatcher(ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"}, WithAdapter(ProviderOpenAI, fake))

	history := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hey"},
		{Role: RoleUser, Content: "how are you?"},
	}
	reply := d.Dispatch(context.Background(), history, "be nice")

	assert.Equal(t, "hello there", reply)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, history, fake.history)
	assert.Equal(t, "be nice", fake.system)
	assert.True(t, fake.hadDeadline, "adapter calls must carry a deadline")
}

func TestDispatch_NoProviderConfigured_UsesFallback(t *testing.T) {
	history := userTurns("hi")
	d := NewDispatcher(ProviderConfig{})

	assert.Equal(t, FallbackResponder{}.Respond(history), d.Dispatch(context.Background(), history, ""))
}

func TestDispatch_MissingCredential_SkipsAdapter(t *testing.T) {
	for _, p := range []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderGoogle} {
		t.Run(string(p), func(t *testing.T) {
			fake := &fakeAdapter{reply: "should not be used"}
			d := NewDispatcher(ProviderConfig{Provider: p}, WithAdapter(p, fake))

			history := userTurns("hi")
			reply := d.Dispatch(context.Background(), history, "")

			assert.Equal(t, FallbackResponder{}.Respond(history), reply)
			assert.Zero(t, fake.calls)
		})
	}
}

func TestDispatch_UnknownProvider_UsesFallback(t *testing.T) {
	d := NewDispatcher(ProviderConfig{Provider: "mystery", OpenAIAPIKey: "sk-test"})

	reply := d.Dispatch(context.Background(), userTurns("ping"), "")
	assert.Contains(t, reply, "ping")
	assert.Contains(t, reply, "unable to connect")
}

func TestDispatch_OpenAIQuotaError_UsesFallback(t *testing.T) {
	fake := &fakeAdapter{err: &ProviderError{Provider: "OpenAI", Err: errors.New("429 rate limited")}}
	d := NewDispatcher(ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"}, WithAdapter(ProviderOpenAI, fake))

	history := userTurns("hi")
	reply := d.Dispatch(context.Background(), history, "")

	assert.Equal(t, FallbackResponder{}.Respond(history), reply)
	assert.NotContains(t, reply, "Error calling OpenAI")
}

func TestDispatch_OpenAIOtherError_ReturnedVerbatim(t *testing.T) {
	fake := &fakeAdapter{err: &ProviderError{Provider: "OpenAI", Err: errors.New("invalid api key")}}
	d := NewDispatcher(ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"}, WithAdapter(ProviderOpenAI, fake))

	reply := d.Dispatch(context.Background(), userTurns("hi"), "")
	assert.Equal(t, "Error calling OpenAI: invalid api key", reply)
}

func TestDispatch_AnthropicAndGoogleErrors_NotClassified(t *testing.T) {
	cases := []struct {
		provider ProviderName
		cfg      ProviderConfig
	}{
		{ProviderAnthropic, ProviderConfig{Provider: ProviderAnthropic, AnthropicAPIKey: "key"}},
		{ProviderGoogle, ProviderConfig{Provider: ProviderGoogle, GoogleAPIKey: "key"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.provider), func(t *testing.T) {
			name := DisplayName(tc.provider)
			fake := &fakeAdapter{err: &ProviderError{Provider: name, Err: errors.New("429 quota exhausted")}}
			d := NewDispatcher(tc.cfg, WithAdapter(tc.provider, fake))

			reply := d.Dispatch(context.Background(), userTurns("hi"), "")
			assert.Equal(t, "Error calling "+name+": 429 quota exhausted", reply)
		})
	}
}

func TestDispatch_LMStudioError_AlwaysFallsBack(t *testing.T) {
	fake := &fakeAdapter{err: &ProviderError{Provider: "LM Studio", Err: errors.New("connection refused")}}
	d := NewDispatcher(ProviderConfig{Provider: ProviderLMStudio, LMStudioModel: "qwen"}, WithAdapter(ProviderLMStudio, fake))

	history := userTurns("local please")
	reply := d.Dispatch(context.Background(), history, "")

	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, FallbackResponder{}.Respond(history), reply)
}

func TestDispatch_UnwrappedError_UsesFallback(t *testing.T) {
	fake := &fakeAdapter{err: context.DeadlineExceeded}
	d := NewDispatcher(ProviderConfig{Provider: ProviderAnthropic, AnthropicAPIKey: "key"}, WithAdapter(ProviderAnthropic, fake))

	history := userTurns("slow")
	assert.Equal(t, FallbackResponder{}.Respond(history), d.Dispatch(context.Background(), history, ""))
}

func TestDispatch_AdapterPanic_UsesFallback(t *testing.T) {
	fake := &fakeAdapter{panic: true}
	d := NewDispatcher(ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"}, WithAdapter(ProviderOpenAI, fake))

	history := userTurns("boom")
	var reply string
	require.NotPanics(t, func() {
		reply = d.Dispatch(context.Background(), history, "")
	})
	assert.Equal(t, FallbackResponder{}.Respond(history), reply)
}

func TestDispatch_EmptyReply_UsesFallback(t *testing.T) {
	fake := &fakeAdapter{reply: "   "}
	d := NewDispatcher(ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "sk-test"}, WithAdapter(ProviderOpenAI, fake))

	reply := d.Dispatch(context.Background(), nil, "")
	assert.Contains(t, reply, "your message")
}

func TestDispatch_NeverReturnsEmpty(t *testing.T) {
	histories := [][]Turn{
		nil,
		{},
		userTurns(""),
		{{Role: RoleAssistant, Content: "only me"}},
		{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "x"}},
	}
	configs := []ProviderConfig{
		{},
		{Provider: ProviderOpenAI},
		{Provider: ProviderLMStudio},
		{Provider: ProviderGoogle, GoogleAPIKey: "k"},
	}
	for _, cfg := range configs {
		fake := &fakeAdapter{err: &ProviderError{Provider: DisplayName(cfg.Provider), Err: errors.New("down")}}
		d := NewDispatcher(cfg, WithAdapter(cfg.Provider, fake))
		for _, h := range histories {
			assert.NotEmpty(t, d.Dispatch(context.Background(), h, ""))
		}
	}
}

func TestProviderConfig_Configured(t *testing.T) {
	assert.False(t, ProviderConfig{}.Configured())
	assert.False(t, ProviderConfig{Provider: ProviderOpenAI}.Configured())
	assert.True(t, ProviderConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "k"}.Configured())
	assert.False(t, ProviderConfig{Provider: ProviderAnthropic, OpenAIAPIKey: "k"}.Configured())
	assert.True(t, ProviderConfig{Provider: ProviderLMStudio}.Configured())
}
