package conversations

import (
	"errors"

	"conversation-system/internal/repo"
)

var (
	// ErrNotFound is returned when a conversation, message or share token does not exist
	ErrNotFound = repo.ErrNotFound
	// ErrAlreadyEnded is returned when ending a conversation twice
	ErrAlreadyEnded = errors.New("conversation already ended")
	// ErrInvalidFormat is returned for an unknown export format
	ErrInvalidFormat = errors.New("invalid export format")
	// ErrNotImplemented is returned for export formats that are recognised but unsupported
	ErrNotImplemented = errors.New("not implemented")
	// ErrMessageNotInConversation is returned when a branch point belongs to another conversation
	ErrMessageNotInConversation = errors.New("message not found in conversation")
	// ErrEmptyContent is returned when a message has no content
	ErrEmptyContent = errors.New("message content is required")
	// ErrInvalidInput is returned for any other rejected request field
	ErrInvalidInput = errors.New("invalid input")
)
