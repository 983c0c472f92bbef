package assistant

import (
	"context"
	"fmt"
	"strings"

	"conversation-system/internal/repo"
	"conversation-system/internal/services/llm"

	"github.com/rs/zerolog/log"
)

const (
	titleInputLimit      = 100
	suggestionInputLimit = 100
)

// NoConversationsAnswer is returned when a query has no candidate conversations
const NoConversationsAnswer = "No past conversations found matching your criteria."

// Dispatcher sends a prompt to the configured LLM and always returns text
type Dispatcher interface {
	Dispatch(ctx context.Context, history []llm.Turn, systemPrompt string) string
}

// Assistant exposes the LLM-backed operations of the conversation service
type Assistant struct {
	dispatcher Dispatcher
	builder    *ContextBuilder
}

// New creates an Assistant
func New(dispatcher Dispatcher, history HistorySource) *Assistant {
	return &Assistant{
		dispatcher: dispatcher,
		builder:    NewContextBuilder(history),
	}
}

// Chat replies to userMessage using the conversation's recent turns as context.
// The new message is appended to the persisted history, so callers persist it afterwards.
func (a *Assistant) Chat(ctx context.Context, conversationID int64, userMessage string) string {
	history, err := a.builder.RecentTurns(ctx, conversationID, llm.DefaultContextTurns)
	if err != nil {
		log.Warn().Err(err).Int64("conversation_id", conversationID).Msg("Chat continuing without history")
	}
	history = append(history, llm.Turn{Role: llm.RoleUser, Content: userMessage})

	return a.dispatcher.Dispatch(ctx, history, chatSystemPrompt)
}

// GenerateTitle asks for a short title describing a conversation's opening message
func (a *Assistant) GenerateTitle(ctx context.Context, firstMessage string) string {
	prompt := fmt.Sprintf(titlePromptTemplate, cut(firstMessage, titleInputLimit))
	title := a.dispatcher.Dispatch(ctx, userPrompt(prompt), titleSystemPrompt)
	return cleanTitle(title)
}

// AnalyzeConversation summarizes a transcript into topics, sentiment and action items
func (a *Assistant) AnalyzeConversation(ctx context.Context, msgs []repo.Message) llm.Summary {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = strings.ToUpper(m.Sender) + ": " + m.Content
	}

	prompt := fmt.Sprintf(analysisPromptTemplate, strings.Join(lines, "\n"))
	raw := a.dispatcher.Dispatch(ctx, userPrompt(prompt), analysisSystemPrompt)
	return llm.ExtractSummary(raw)
}

// QueryPastConversations answers query from the text of candidates, which
// must be ordered newest first.
func (a *Assistant) QueryPastConversations(ctx context.Context, query string, candidates []repo.Conversation) (llm.QueryAnswer, error) {
	if len(candidates) == 0 {
		return llm.QueryAnswer{
			Answer:                  NoConversationsAnswer,
			RelevantConversationIDs: []int64{},
			RelevantConversations:   []llm.ConversationRef{},
			Excerpts:                []llm.Excerpt{},
		}, nil
	}

	block, refs, err := a.builder.QueryPrompt(ctx, candidates)
	if err != nil {
		return llm.QueryAnswer{}, err
	}

	prompt := fmt.Sprintf(queryPromptTemplate, query, block)
	raw := a.dispatcher.Dispatch(ctx, userPrompt(prompt), querySystemPrompt)
	return llm.ExtractQueryAnswer(raw, refs), nil
}

// SuggestFollowups proposes follow-up questions for the given recent messages
func (a *Assistant) SuggestFollowups(ctx context.Context, recent []repo.Message) []string {
	lines := make([]string, len(recent))
	for i, m := range recent {
		lines[i] = m.Sender + ": " + cut(m.Content, suggestionInputLimit)
	}

	prompt := fmt.Sprintf(suggestPromptTemplate, strings.Join(lines, "\n"))
	raw := a.dispatcher.Dispatch(ctx, userPrompt(prompt), suggestSystemPrompt)
	return llm.ExtractSuggestions(raw)
}

func userPrompt(content string) []llm.Turn {
	return []llm.Turn{{Role: llm.RoleUser, Content: content}}
}

// cleanTitle trims whitespace, then double quotes, then single quotes
func cleanTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"`)
	return strings.Trim(title, "'")
}

// cut truncates s to n characters
func cut(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
