package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/recipebook/recipebook/internal/apperror"
)

// writeError renders err as the structured error body.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperror.Status(err))
	_ = json.NewEncoder(w).Encode(apperror.ToResponse(err))
}
