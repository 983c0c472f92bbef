package conversations

import (
	"time"

	"conversation-system/internal/repo"
)

// CreateConversationRequest represents a new conversation request
type CreateConversationRequest struct {
	Title string `json:"title"`
}

// UpdateConversationRequest represents a title change; a null title clears it
type UpdateConversationRequest struct {
	Title *string `json:"title"`
}

// SendMessageRequest represents a user message
type SendMessageRequest struct {
	Content string `json:"content"`
}

// BranchRequest represents a branch from a message
type BranchRequest struct {
	MessageID int64  `json:"message_id"`
	Title     string `json:"title"`
}

// ReactionRequest represents an emoji reaction
type ReactionRequest struct {
	Emoji string `json:"emoji"`
}

// QueryRequest represents a question about past conversations
type QueryRequest struct {
	Query           string     `json:"query"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	ConversationIDs []int64    `json:"conversation_ids,omitempty"`
}

// ConversationDTO represents a conversation in list and update responses
type ConversationDTO struct {
	ID                 int64      `json:"id"`
	Title              *string    `json:"title"`
	Status             string     `json:"status"`
	StartTimestamp     time.Time  `json:"start_timestamp"`
	EndTimestamp       *time.Time `json:"end_timestamp"`
	Summary            string     `json:"summary"`
	MessageCount       int        `json:"message_count"`
	KeyTopics          []string   `json:"key_topics"`
	Sentiment          string     `json:"sentiment"`
	ActionItems        []string   `json:"action_items"`
	ShareToken         *string    `json:"share_token"`
	IsShared           bool       `json:"is_shared"`
	ParentConversation *int64     `json:"parent_conversation"`
	BranchesCount      int        `json:"branches_count"`
}

// ConversationDetailDTO represents a conversation with its messages
type ConversationDetailDTO struct {
	ID             int64        `json:"id"`
	Title          *string      `json:"title"`
	Status         string       `json:"status"`
	StartTimestamp time.Time    `json:"start_timestamp"`
	EndTimestamp   *time.Time   `json:"end_timestamp"`
	Summary        string       `json:"summary"`
	Messages       []MessageDTO `json:"messages"`
	KeyTopics      []string     `json:"key_topics"`
	Sentiment      string       `json:"sentiment"`
	ActionItems    []string     `json:"action_items"`
}

// MessageDTO represents a message returned to clients
type MessageDTO struct {
	ID            int64          `json:"id"`
	Content       string         `json:"content"`
	Sender        string         `json:"sender"`
	Timestamp     time.Time      `json:"timestamp"`
	ParentMessage *int64         `json:"parent_message"`
	Reactions     map[string]int `json:"reactions"`
	IsBookmarked  bool           `json:"is_bookmarked"`
	RepliesCount  int            `json:"replies_count"`
}

// ExchangeResponse holds the stored user message and the AI reply
type ExchangeResponse struct {
	UserMessage MessageDTO `json:"user_message"`
	AIMessage   MessageDTO `json:"ai_message"`
}

// ShareResponse holds the public link of a shared conversation
type ShareResponse struct {
	ShareToken string `json:"share_token"`
	ShareURL   string `json:"share_url"`
}

// SuggestionsResponse holds follow-up suggestions
type SuggestionsResponse struct {
	Suggestions []string `json:"suggestions"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternal       = "INTERNAL_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeNotImplemented = "NOT_IMPLEMENTED"
)

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

func toConversationDTO(c repo.Conversation) ConversationDTO {
	return ConversationDTO{
		ID:                 c.ID,
		Title:              c.Title,
		Status:             c.Status,
		StartTimestamp:     c.StartTimestamp,
		EndTimestamp:       c.EndTimestamp,
		Summary:            c.Summary,
		MessageCount:       c.MessageCount,
		KeyTopics:          c.KeyTopics,
		Sentiment:          c.Sentiment,
		ActionItems:        c.ActionItems,
		ShareToken:         c.ShareToken,
		IsShared:           c.IsShared,
		ParentConversation: c.ParentConversation,
		BranchesCount:      c.BranchesCount,
	}
}

func toDetailDTO(c repo.Conversation, msgs []repo.Message) ConversationDetailDTO {
	return ConversationDetailDTO{
		ID:             c.ID,
		Title:          c.Title,
		Status:         c.Status,
		StartTimestamp: c.StartTimestamp,
		EndTimestamp:   c.EndTimestamp,
		Summary:        c.Summary,
		Messages:       toMessageDTOs(msgs),
		KeyTopics:      c.KeyTopics,
		Sentiment:      c.Sentiment,
		ActionItems:    c.ActionItems,
	}
}

func toMessageDTO(m repo.Message) MessageDTO {
	return MessageDTO{
		ID:            m.ID,
		Content:       m.Content,
		Sender:        m.Sender,
		Timestamp:     m.Timestamp,
		ParentMessage: m.ParentMessage,
		Reactions:     m.Reactions,
		IsBookmarked:  m.IsBookmarked,
		RepliesCount:  m.RepliesCount,
	}
}

func toMessageDTOs(msgs []repo.Message) []MessageDTO {
	dtos := make([]MessageDTO, len(msgs))
	for i, m := range msgs {
		dtos[i] = toMessageDTO(m)
	}
	return dtos
}
