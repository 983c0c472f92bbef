package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes the standard error envelope
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		http.Error(w, message, status)
	}
}
