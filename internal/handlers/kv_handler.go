package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
)

// KVHandler handles the generic key/value blob store endpoints. External
// collaborators (the dataset importer, API-key management) use these rather
// than bespoke endpoints.
type KVHandler struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewKVHandler creates a new KV handler
func NewKVHandler(kv interfaces.KeyValueStorage, logger arbor.ILogger) *KVHandler {
	return &KVHandler{
		kv:     kv,
		logger: logger,
	}
}

// ListHandler handles GET /api/kv - lists all pairs, values masked when the
// key looks sensitive
func (h *KVHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	var (
		pairs []interfaces.KeyValuePair
		err   error
	)
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		pairs, err = h.kv.ListByPrefix(r.Context(), prefix)
	} else {
		pairs, err = h.kv.List(r.Context())
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list key/value pairs")
		WriteError(w, http.StatusInternalServerError, "Failed to list key/value pairs")
		return
	}

	sanitized := make([]map[string]interface{}, len(pairs))
	for i, pair := range pairs {
		sanitized[i] = map[string]interface{}{
			"key":         pair.Key,
			"value":       h.maskValue(pair.Key, pair.Value),
			"description": pair.Description,
			"created_at":  pair.CreatedAt,
			"updated_at":  pair.UpdatedAt,
		}
	}

	WriteJSON(w, http.StatusOK, sanitized)
}

// GetHandler handles GET /api/kv/{key}
func (h *KVHandler) GetHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	value, err := h.kv.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to read key")
		WriteError(w, http.StatusInternalServerError, "Failed to read key")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"key":   key,
		"value": value,
	})
}

type setKVRequest struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// SetHandler handles POST /api/kv
func (h *KVHandler) SetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req setKVRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		WriteError(w, http.StatusBadRequest, "Key must not be empty")
		return
	}

	if err := h.kv.Set(r.Context(), req.Key, req.Value, req.Description); err != nil {
		h.logger.Error().Err(err).Str("key", req.Key).Msg("Failed to store key")
		WriteError(w, http.StatusInternalServerError, "Failed to store key")
		return
	}

	h.logger.Info().Str("key", req.Key).Msg("Key stored")
	WriteSuccess(w, "stored")
}

// DeleteHandler handles DELETE /api/kv/{key}
func (h *KVHandler) DeleteHandler(w http.ResponseWriter, r *http.Request, key string) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	if err := h.kv.Delete(r.Context(), key); err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			WriteError(w, http.StatusNotFound, "Key not found")
			return
		}
		h.logger.Error().Err(err).Str("key", key).Msg("Failed to delete key")
		WriteError(w, http.StatusInternalServerError, "Failed to delete key")
		return
	}

	h.logger.Info().Str("key", key).Msg("Key deleted")
	WriteSuccess(w, "deleted")
}

// KeyFromPath extracts and decodes the key segment after the route prefix
func KeyFromPath(r *http.Request, prefix string) string {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	key, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return key
}

// maskValue hides values whose keys suggest credentials
func (h *KVHandler) maskValue(key, value string) string {
	lower := strings.ToLower(key)
	for _, marker := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(lower, marker) {
			if len(value) <= 4 {
				return "****"
			}
			return value[:2] + "****" + value[len(value)-2:]
		}
	}
	return value
}
