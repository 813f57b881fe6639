package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/obsoleta/internal/interfaces"
)

// apiKeyKV is the KV entry holding the configured API key. No entry means
// the API runs open, which suits local development.
const apiKeyKV = "auth/api_key"

// Service performs API-key checks against the KV store. Key management is
// owned externally; this service only verifies.
type Service struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewService creates the auth service
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{
		kv:     kv,
		logger: logger,
	}
}

// Required reports whether an API key is configured
func (s *Service) Required(ctx context.Context) (bool, error) {
	_, err := s.kv.Get(ctx, apiKeyKV)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Check verifies the presented key. When no key is configured every request
// is authorized.
func (s *Service) Check(ctx context.Context, presented string) (bool, error) {
	expected, err := s.kv.Get(ctx, apiKeyKV)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	if presented == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1, nil
}
