package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"conversation-system/internal/repo"
	"conversation-system/internal/services/llm"
)

const (
	queryMessagesPerConversation = 20
	queryBlockSeparator          = "\n\n---\n\n"
	queryDateLayout              = "2006-01-02 15:04:05-07:00"
)

// HistorySource reads persisted messages
type HistorySource interface {
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]repo.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]repo.Message, error)
}

// ContextBuilder turns persisted conversations into model input
type ContextBuilder struct {
	history HistorySource
}

// NewContextBuilder creates a ContextBuilder reading from history
func NewContextBuilder(history HistorySource) *ContextBuilder {
	return &ContextBuilder{history: history}
}

// RecentTurns returns the last limit messages of a conversation as turns, oldest first
func (b *ContextBuilder) RecentTurns(ctx context.Context, conversationID int64, limit int) ([]llm.Turn, error) {
	if limit <= 0 {
		limit = llm.DefaultContextTurns
	}
	msgs, err := b.history.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load context for conversation %d: %w", conversationID, err)
	}
	return ToTurns(msgs), nil
}

// QueryPrompt renders candidates into the composite block used for
// cross-conversation questions, along with their references in the same order.
func (b *ContextBuilder) QueryPrompt(ctx context.Context, candidates []repo.Conversation) (string, []llm.ConversationRef, error) {
	blocks := make([]string, 0, len(candidates))
	refs := make([]llm.ConversationRef, 0, len(candidates))

	for _, c := range candidates {
		msgs, err := b.history.ListMessages(ctx, c.ID, queryMessagesPerConversation)
		if err != nil {
			return "", nil, fmt.Errorf("failed to load messages for conversation %d: %w", c.ID, err)
		}
		blocks = append(blocks, renderConversationBlock(c, msgs))
		refs = append(refs, ToRef(c))
	}

	return strings.Join(blocks, queryBlockSeparator), refs, nil
}

func renderConversationBlock(c repo.Conversation, msgs []repo.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation ID: %d\n", c.ID)
	fmt.Fprintf(&sb, "Title: %s\n", c.DisplayTitle())
	fmt.Fprintf(&sb, "Date: %s\n", c.StartTimestamp.Format(queryDateLayout))
	if c.Summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", c.Summary)
	}

	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = m.Sender + ": " + m.Content
	}
	fmt.Fprintf(&sb, "Messages:\n%s\n", strings.Join(lines, "\n"))
	return sb.String()
}

// ToTurns maps stored messages onto model roles
func ToTurns(msgs []repo.Message) []llm.Turn {
	turns := make([]llm.Turn, len(msgs))
	for i, m := range msgs {
		role := llm.RoleAssistant
		if m.Sender == repo.SenderUser {
			role = llm.RoleUser
		}
		turns[i] = llm.Turn{Role: role, Content: m.Content}
	}
	return turns
}

// ToRef converts a conversation into the reference shape returned by queries
func ToRef(c repo.Conversation) llm.ConversationRef {
	return llm.ConversationRef{
		ID:             c.ID,
		Title:          c.DisplayTitle(),
		StartTimestamp: c.StartTimestamp.UTC().Truncate(time.Microsecond),
		Summary:        c.Summary,
	}
}
