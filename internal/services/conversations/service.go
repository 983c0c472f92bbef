package conversations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"conversation-system/internal/cache"
	"conversation-system/internal/repo"
	"conversation-system/internal/services/llm"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	maxTitleLength   = 255
	maxEmojiLength   = 10
	suggestionWindow = 5
)

// Assistant is the LLM surface the service depends on
type Assistant interface {
	Chat(ctx context.Context, conversationID int64, userMessage string) string
	GenerateTitle(ctx context.Context, firstMessage string) string
	AnalyzeConversation(ctx context.Context, msgs []repo.Message) llm.Summary
	QueryPastConversations(ctx context.Context, query string, candidates []repo.Conversation) (llm.QueryAnswer, error)
	SuggestFollowups(ctx context.Context, recent []repo.Message) []string
}

// ConversationService handles conversation lifecycle and message actions
type ConversationService struct {
	repo      repo.Repository
	cache     cache.Store
	assistant Assistant
}

// NewConversationService creates a new ConversationService
func NewConversationService(repo repo.Repository, cache cache.Store, assistant Assistant) *ConversationService {
	return &ConversationService{
		repo:      repo,
		cache:     cache,
		assistant: assistant,
	}
}

// Create starts a new active conversation. A blank title leaves it untitled.
func (s *ConversationService) Create(ctx context.Context, req CreateConversationRequest) (ConversationDTO, error) {
	title, err := normalizeTitle(&req.Title)
	if err != nil {
		return ConversationDTO{}, err
	}

	c, err := s.repo.CreateConversation(ctx, repo.CreateConversationParams{Title: title})
	if err != nil {
		return ConversationDTO{}, fmt.Errorf("failed to create conversation: %w", err)
	}

	log.Info().Int64("conversation_id", c.ID).Msg("Conversation created")
	return toConversationDTO(c), nil
}

// List returns conversations newest first, optionally filtered by status
func (s *ConversationService) List(ctx context.Context, status string, limit, offset int) ([]ConversationDTO, error) {
	switch status {
	case "", repo.StatusActive, repo.StatusEnded:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrInvalidInput)
	}

	convs, err := s.repo.ListConversations(ctx, repo.ListConversationsParams{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}

	dtos := make([]ConversationDTO, len(convs))
	for i, c := range convs {
		dtos[i] = toConversationDTO(c)
	}
	return dtos, nil
}

// Get returns a conversation with all of its messages
func (s *ConversationService) Get(ctx context.Context, id int64) (ConversationDetailDTO, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ConversationDetailDTO{}, err
	}
	return s.detail(ctx, c)
}

// Update changes the title; a nil or blank title clears it
func (s *ConversationService) Update(ctx context.Context, id int64, req UpdateConversationRequest) (ConversationDTO, error) {
	title, err := normalizeTitle(req.Title)
	if err != nil {
		return ConversationDTO{}, err
	}

	c, err := s.repo.UpdateConversationTitle(ctx, id, title)
	if err != nil {
		return ConversationDTO{}, err
	}
	return toConversationDTO(c), nil
}

// Delete removes a conversation and its messages
func (s *ConversationService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	log.Info().Int64("conversation_id", id).Msg("Conversation deleted")
	return nil
}

// SendMessage stores a user message together with the AI reply. The first
// exchange of an untitled conversation also generates its title.
func (s *ConversationService) SendMessage(ctx context.Context, id int64, req SendMessageRequest) (ExchangeResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return ExchangeResponse{}, ErrEmptyContent
	}

	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ExchangeResponse{}, err
	}

	exchange, err := s.exchange(ctx, id, req.Content, nil)
	if err != nil {
		return ExchangeResponse{}, err
	}

	if c.Title == nil || *c.Title == "" {
		s.autoTitle(ctx, id, req.Content)
	}
	return exchange, nil
}

// exchange asks the assistant for a reply, then persists both messages.
// History is read before the user message is stored so it is sent exactly once.
func (s *ConversationService) exchange(ctx context.Context, conversationID int64, content string, parent *int64) (ExchangeResponse, error) {
	sentAt := repo.Now()
	reply := s.assistant.Chat(ctx, conversationID, content)

	userMsg, err := s.repo.CreateMessage(ctx, repo.CreateMessageParams{
		ConversationID: conversationID,
		Content:        content,
		Sender:         repo.SenderUser,
		Timestamp:      sentAt,
		ParentMessage:  parent,
	})
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("failed to store user message: %w", err)
	}

	aiMsg, err := s.repo.CreateMessage(ctx, repo.CreateMessageParams{
		ConversationID: conversationID,
		Content:        reply,
		Sender:         repo.SenderAI,
		Timestamp:      repo.Now(),
		ParentMessage:  parent,
	})
	if err != nil {
		return ExchangeResponse{}, fmt.Errorf("failed to store ai message: %w", err)
	}

	return ExchangeResponse{
		UserMessage: toMessageDTO(userMsg),
		AIMessage:   toMessageDTO(aiMsg),
	}, nil
}

func (s *ConversationService) autoTitle(ctx context.Context, id int64, firstMessage string) {
	count, err := s.repo.CountMessages(ctx, id)
	if err != nil {
		log.Warn().Err(err).Int64("conversation_id", id).Msg("Skipping title generation")
		return
	}
	if count != 2 {
		return
	}

	title := truncate(s.assistant.GenerateTitle(ctx, firstMessage), maxTitleLength)
	if title == "" {
		return
	}
	if _, err := s.repo.UpdateConversationTitle(ctx, id, &title); err != nil {
		log.Warn().Err(err).Int64("conversation_id", id).Msg("Failed to store generated title")
		return
	}
	log.Debug().Int64("conversation_id", id).Str("title", title).Msg("Conversation titled")
}

// End analyzes the transcript and closes the conversation
func (s *ConversationService) End(ctx context.Context, id int64) (ConversationDetailDTO, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ConversationDetailDTO{}, err
	}
	if c.Status == repo.StatusEnded {
		return ConversationDetailDTO{}, ErrAlreadyEnded
	}

	msgs, err := s.repo.ListMessages(ctx, id, 0)
	if err != nil {
		return ConversationDetailDTO{}, err
	}

	analysis := s.assistant.AnalyzeConversation(ctx, msgs)

	c, err = s.repo.FinishConversation(ctx, repo.FinishConversationParams{
		ID:          id,
		Summary:     analysis.Summary,
		KeyTopics:   analysis.KeyTopics,
		Sentiment:   analysis.Sentiment,
		ActionItems: analysis.ActionItems,
		EndedAt:     repo.Now(),
	})
	if errors.Is(err, repo.ErrStateConflict) {
		return ConversationDetailDTO{}, ErrAlreadyEnded
	}
	if err != nil {
		return ConversationDetailDTO{}, err
	}

	log.Info().
		Int64("conversation_id", id).
		Int("messages", len(msgs)).
		Str("sentiment", analysis.Sentiment).
		Msg("Conversation ended")
	return toDetailDTO(c, msgs), nil
}

// Share makes a conversation public. An existing token is reused.
func (s *ConversationService) Share(ctx context.Context, id int64, baseURL string) (ShareResponse, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ShareResponse{}, err
	}

	token := ""
	if c.IsShared && c.ShareToken != nil {
		token = *c.ShareToken
	} else {
		token = strings.ReplaceAll(uuid.NewString(), "-", "")
		if _, err := s.repo.SetShareToken(ctx, id, &token); err != nil {
			return ShareResponse{}, err
		}
	}

	return ShareResponse{
		ShareToken: token,
		ShareURL:   strings.TrimSuffix(baseURL, "/") + "/shared/" + token,
	}, nil
}

// Unshare revokes the public link
func (s *ConversationService) Unshare(ctx context.Context, id int64) error {
	_, err := s.repo.SetShareToken(ctx, id, nil)
	return err
}

// GetShared returns a shared conversation by its token
func (s *ConversationService) GetShared(ctx context.Context, token string) (ConversationDetailDTO, error) {
	c, err := s.repo.GetConversationByShareToken(ctx, token)
	if err != nil {
		return ConversationDetailDTO{}, err
	}
	return s.detail(ctx, c)
}

// Branch creates a child conversation holding the messages up to req.MessageID
func (s *ConversationService) Branch(ctx context.Context, id int64, req BranchRequest) (ConversationDTO, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return ConversationDTO{}, err
	}

	point, err := s.repo.GetMessage(ctx, req.MessageID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && point.ConversationID != id) {
		return ConversationDTO{}, ErrMessageNotInConversation
	}
	if err != nil {
		return ConversationDTO{}, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Branch: " + c.DisplayTitle()
	}

	branch, err := s.repo.BranchConversation(ctx, repo.BranchConversationParams{
		SourceID: id,
		Title:    truncate(title, maxTitleLength),
		UpTo:     point.Timestamp,
	})
	if err != nil {
		return ConversationDTO{}, err
	}

	log.Info().
		Int64("conversation_id", id).
		Int64("branch_id", branch.ID).
		Int("messages", branch.MessageCount).
		Msg("Conversation branched")
	return toConversationDTO(branch), nil
}

// Suggestions returns follow-up questions for the latest messages
func (s *ConversationService) Suggestions(ctx context.Context, id int64) (SuggestionsResponse, error) {
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return SuggestionsResponse{}, err
	}

	key := cache.SuggestionsKey(id, c.MessageCount)
	if data, err := s.cache.Get(ctx, key); err == nil {
		var cached []string
		if err := json.Unmarshal(data, &cached); err == nil {
			return SuggestionsResponse{Suggestions: cached}, nil
		}
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		log.Warn().Err(err).Str("key", key).Msg("Suggestions cache read failed")
	}

	recent, err := s.repo.RecentMessages(ctx, id, suggestionWindow)
	if err != nil {
		return SuggestionsResponse{}, err
	}

	suggestions := s.assistant.SuggestFollowups(ctx, recent)
	if !slices.Equal(suggestions, llm.DefaultSuggestions) {
		if err := s.cache.Set(ctx, key, suggestions, cache.SuggestionsTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Suggestions cache write failed")
		}
	}
	return SuggestionsResponse{Suggestions: suggestions}, nil
}

// GetMessage returns a single message
func (s *ConversationService) GetMessage(ctx context.Context, id int64) (MessageDTO, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return MessageDTO{}, err
	}
	return toMessageDTO(m), nil
}

// React increments the counter of emoji on a message
func (s *ConversationService) React(ctx context.Context, id int64, req ReactionRequest) (MessageDTO, error) {
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || utf8.RuneCountInString(emoji) > maxEmojiLength {
		return MessageDTO{}, fmt.Errorf("emoji must be 1-%d characters: %w", maxEmojiLength, ErrInvalidInput)
	}

	m, err := s.repo.AddReaction(ctx, id, emoji)
	if err != nil {
		return MessageDTO{}, err
	}
	return toMessageDTO(m), nil
}

// ToggleBookmark flips the bookmark flag of a message
func (s *ConversationService) ToggleBookmark(ctx context.Context, id int64) (MessageDTO, error) {
	m, err := s.repo.ToggleBookmark(ctx, id)
	if err != nil {
		return MessageDTO{}, err
	}
	return toMessageDTO(m), nil
}

// Reply answers in a thread under parentID. Both new messages point at the parent.
func (s *ConversationService) Reply(ctx context.Context, parentID int64, req SendMessageRequest) (ExchangeResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return ExchangeResponse{}, ErrEmptyContent
	}

	parent, err := s.repo.GetMessage(ctx, parentID)
	if err != nil {
		return ExchangeResponse{}, err
	}
	return s.exchange(ctx, parent.ConversationID, req.Content, &parent.ID)
}

// Query answers a question using the text of matching ended conversations
func (s *ConversationService) Query(ctx context.Context, req QueryRequest) (llm.QueryAnswer, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return llm.QueryAnswer{}, fmt.Errorf("query is required: %w", ErrInvalidInput)
	}
	if req.DateFrom != nil && req.DateTo != nil && req.DateTo.Before(*req.DateFrom) {
		return llm.QueryAnswer{}, fmt.Errorf("date_to is before date_from: %w", ErrInvalidInput)
	}

	key := cache.QueryKey(query, req.DateFrom, req.DateTo, req.ConversationIDs)
	data, err := s.cache.GetOrSet(ctx, key, cache.QueryTTL, func() (interface{}, error) {
		candidates, err := s.repo.ListConversationsForQuery(ctx, repo.QueryConversationsParams{
			DateFrom: req.DateFrom,
			DateTo:   req.DateTo,
			IDs:      req.ConversationIDs,
		})
		if err != nil {
			return nil, err
		}

		log.Debug().Str("query", query).Int("candidates", len(candidates)).Msg("Querying past conversations")
		answer, err := s.assistant.QueryPastConversations(ctx, query, candidates)
		if err != nil {
			return nil, err
		}
		if answer.Degraded {
			return cache.NoStore(answer), nil
		}
		return answer, nil
	})
	if err != nil {
		return llm.QueryAnswer{}, err
	}

	var answer llm.QueryAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		return llm.QueryAnswer{}, fmt.Errorf("failed to decode query answer: %w", err)
	}
	return answer, nil
}

func (s *ConversationService) detail(ctx context.Context, c repo.Conversation) (ConversationDetailDTO, error) {
	msgs, err := s.repo.ListMessages(ctx, c.ID, 0)
	if err != nil {
		return ConversationDetailDTO{}, err
	}
	return toDetailDTO(c, msgs), nil
}

func normalizeTitle(title *string) (*string, error) {
	if title == nil {
		return nil, nil
	}
	t := strings.TrimSpace(*title)
	if t == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(t) > maxTitleLength {
		return nil, fmt.Errorf("title exceeds %d characters: %w", maxTitleLength, ErrInvalidInput)
	}
	return &t, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
