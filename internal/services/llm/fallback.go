package llm

import "fmt"

const fallbackTemplate = "I understand you said: '%s'. However, I'm currently unable to connect to the AI service. " +
	"Please check your API configuration. You can use LM Studio for local testing, " +
	"or configure OpenAI, Anthropic, or Google Gemini API keys."

// FallbackResponder produces the canned reply used when no provider answers
type FallbackResponder struct{}

// Respond quotes the latest user turn back in the fallback template
func (FallbackResponder) Respond(history []Turn) string {
	last := ""
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			last = history[i].Content
			break
		}
	}
	if last == "" {
		last = "your message"
	}
	return fmt.Sprintf(fallbackTemplate, last)
}
