package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/services/auth"
)

// apiKeyHeader carries the client's API key
const apiKeyHeader = "X-API-Key"

// AuthHandler serves the API-key check endpoint
type AuthHandler struct {
	auth   *auth.Service
	logger arbor.ILogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.Service, logger arbor.ILogger) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		logger: logger,
	}
}

// CheckHandler handles GET /api/auth/check
func (h *AuthHandler) CheckHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	required, err := h.auth.Required(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Auth configuration check failed")
		WriteError(w, http.StatusInternalServerError, "Auth check failed")
		return
	}

	authorized, err := h.auth.Check(r.Context(), r.Header.Get(apiKeyHeader))
	if err != nil {
		h.logger.Error().Err(err).Msg("Auth check failed")
		WriteError(w, http.StatusInternalServerError, "Auth check failed")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"authorized":   authorized,
		"key_required": required,
	})
}
