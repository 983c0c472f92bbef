package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conversation-system/internal/services/analytics"
	"conversation-system/internal/services/conversations"

	"github.com/go-chi/chi/v5"
)

const maxListLimit = 1000

// ConversationHandler handles conversation and message HTTP requests
type ConversationHandler struct {
	service   *conversations.ConversationService
	publicURL string
}

// NewConversationHandler creates a new ConversationHandler. publicURL is the
// base of share links; when empty it is derived from each request.
func NewConversationHandler(service *conversations.ConversationService, publicURL string) *ConversationHandler {
	return &ConversationHandler{service: service, publicURL: publicURL}
}

// RegisterRoutes registers all conversation routes
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/conversations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/messages", h.SendMessage)
			r.Post("/end", h.End)
			r.Post("/share", h.Share)
			r.Post("/unshare", h.Unshare)
			r.Post("/branch", h.Branch)
			r.Get("/export", h.Export)
			r.Get("/suggestions", h.Suggestions)
		})
	})

	r.Route("/api/messages/{id}", func(r chi.Router) {
		r.Get("/", h.GetMessage)
		r.Post("/react", h.React)
		r.Post("/bookmark", h.Bookmark)
		r.Post("/reply", h.Reply)
	})

	r.Post("/api/query", h.Query)
	r.Get("/api/shared/{token}", h.GetShared)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0, 0, maxListLimit)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, 0, 1<<31-1)
	if !ok {
		return
	}

	convs, err := h.service.List(r.Context(), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req conversations.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeBadRequest, "Invalid request body")
		return
	}

	c, err := h.service.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req conversations.UpdateConversationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := h.service.Update(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req conversations.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	exchange, err := h.service.SendMessage(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exchange)
}

func (h *ConversationHandler) End(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	c, err := h.service.End(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) Share(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	share, err := h.service.Share(r.Context(), id, h.baseURL(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, share)
}

func (h *ConversationHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Unshare(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation unshared"})
}

func (h *ConversationHandler) Branch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req conversations.BranchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MessageID <= 0 {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeValidation, "message_id is required")
		return
	}

	branch, err := h.service.Branch(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, branch)
}

func (h *ConversationHandler) Export(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	file, err := h.service.Export(r.Context(), id, r.URL.Query().Get("format"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, file.Filename))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Body)
}

func (h *ConversationHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	suggestions, err := h.service.Suggestions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *ConversationHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.service.GetMessage(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ConversationHandler) React(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req conversations.ReactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	m, err := h.service.React(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ConversationHandler) Bookmark(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	m, err := h.service.ToggleBookmark(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *ConversationHandler) Reply(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req conversations.SendMessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	exchange, err := h.service.Reply(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exchange)
}

// queryPayload accepts dates as RFC 3339 timestamps or plain YYYY-MM-DD days
type queryPayload struct {
	Query           string  `json:"query"`
	DateFrom        string  `json:"date_from"`
	DateTo          string  `json:"date_to"`
	ConversationIDs []int64 `json:"conversation_ids"`
}

func (h *ConversationHandler) Query(w http.ResponseWriter, r *http.Request) {
	var payload queryPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	req := conversations.QueryRequest{
		Query:           payload.Query,
		ConversationIDs: payload.ConversationIDs,
	}
	var err error
	if req.DateFrom, err = parseDate(payload.DateFrom, false); err != nil {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeValidation, "invalid date_from")
		return
	}
	if req.DateTo, err = parseDate(payload.DateTo, true); err != nil {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeValidation, "invalid date_to")
		return
	}

	answer, err := h.service.Query(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *ConversationHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.GetShared(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConversationHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// parseDate parses an optional date. A bare day used as an upper bound
// covers the whole day.
func parseDate(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Microsecond)
	}
	return &t, nil
}

// AnalyticsHandler serves analytics snapshots
type AnalyticsHandler struct {
	service *analytics.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler
func NewAnalyticsHandler(service *analytics.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// RegisterRoutes registers analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/analytics", h.Snapshot)
}

func (h *AnalyticsHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", analytics.DefaultDays, 1, 3650)
	if !ok {
		return
	}

	snap, err := h.service.Snapshot(r.Context(), days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
