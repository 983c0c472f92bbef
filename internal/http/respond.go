package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"conversation-system/internal/services/conversations"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, conversations.NewErrorResponse(code, message))
}

// writeServiceError maps service errors onto HTTP statuses and error codes
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversations.ErrMessageNotInConversation):
		writeError(w, http.StatusNotFound, conversations.ErrCodeNotFound, "Message not found")
	case errors.Is(err, conversations.ErrNotFound):
		writeError(w, http.StatusNotFound, conversations.ErrCodeNotFound, "Resource not found")
	case errors.Is(err, conversations.ErrAlreadyEnded):
		writeError(w, http.StatusBadRequest, conversations.ErrCodeBadRequest, "Conversation already ended")
	case errors.Is(err, conversations.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, conversations.ErrCodeBadRequest, "Invalid format")
	case errors.Is(err, conversations.ErrNotImplemented):
		writeError(w, http.StatusNotImplemented, conversations.ErrCodeNotImplemented, "PDF export requires additional setup")
	case errors.Is(err, conversations.ErrEmptyContent), errors.Is(err, conversations.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, conversations.ErrCodeValidation, err.Error())
	default:
		log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Request failed")
		writeError(w, http.StatusInternalServerError, conversations.ErrCodeInternal, "Internal server error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeBadRequest, "Invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// queryInt parses an optional integer query parameter within [min, max]
func queryInt(w http.ResponseWriter, r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		writeError(w, http.StatusBadRequest, conversations.ErrCodeValidation,
			"invalid "+name+" value (must be "+strconv.Itoa(min)+"-"+strconv.Itoa(max)+")")
		return 0, false
	}
	return v, true
}
