package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError renders the API's failure envelope from outside huma.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"message": message,
	})
}
