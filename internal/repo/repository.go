package repo

import (
	"context"
	"time"
)

// Repository interface for database operations
type Repository interface {
	CreateConversation(ctx context.Context, arg CreateConversationParams) (Conversation, error)
	GetConversation(ctx context.Context, id int64) (Conversation, error)
	ListConversations(ctx context.Context, arg ListConversationsParams) ([]Conversation, error)
	UpdateConversationTitle(ctx context.Context, id int64, title *string) (Conversation, error)
	DeleteConversation(ctx context.Context, id int64) error
	FinishConversation(ctx context.Context, arg FinishConversationParams) (Conversation, error)
	SetShareToken(ctx context.Context, id int64, token *string) (Conversation, error)
	GetConversationByShareToken(ctx context.Context, token string) (Conversation, error)
	BranchConversation(ctx context.Context, arg BranchConversationParams) (Conversation, error)
	ListConversationsForQuery(ctx context.Context, arg QueryConversationsParams) ([]Conversation, error)

	CreateMessage(ctx context.Context, arg CreateMessageParams) (Message, error)
	GetMessage(ctx context.Context, id int64) (Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
	RecentMessages(ctx context.Context, conversationID int64, limit int) ([]Message, error)
	CountMessages(ctx context.Context, conversationID int64) (int, error)
	AddReaction(ctx context.Context, id int64, emoji string) (Message, error)
	ToggleBookmark(ctx context.Context, id int64) (Message, error)

	CountConversationsByStatus(ctx context.Context) (StatusCounts, error)
	ConversationStartsSince(ctx context.Context, since time.Time) ([]time.Time, error)
	MessageTimestampsSince(ctx context.Context, since time.Time) ([]time.Time, error)
	ListConversationInsights(ctx context.Context) ([]ConversationInsight, error)
	CountAllMessages(ctx context.Context) (int, error)
}

// repository implements Repository on top of database/sql
type repository struct {
	db *DB
}

// NewRepository creates a Repository backed by db
func NewRepository(db *DB) Repository {
	return &repository{db: db}
}
