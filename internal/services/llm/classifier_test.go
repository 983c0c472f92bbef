package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsFallbackEligible(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"Error calling OpenAI: 429 rate limited", true},
		{"Error calling OpenAI: You have exceeded your API QUOTA", true},
		{"Error calling OpenAI: insufficient_quota", true},
		{"Error calling LM Studio: connection refused", true},
		{"Error calling OpenAI: invalid api key", false},
		{"Error calling Anthropic: overloaded", false},
		{"lm studio said no", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsFallbackEligible(tc.text), tc.text)
	}
}

func TestProviderError_Format(t *testing.T) {
	err := &ProviderError{Provider: "Google Gemini", Err: assert.AnError}
	assert.Equal(t, "Error calling Google Gemini: "+assert.AnError.Error(), err.Error())
	assert.ErrorIs(t, err, assert.AnError)
}
