// Package service ties storage and token handling together for the REST API
// and the session transport.
package service

import (
	"errors"
	"fmt"
	"time"

	"chessanalysis/internal/server/storage"

	"github.com/lixenwraith/auth"
)

const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	// ErrStorageDisabled is returned by game operations when no store is configured
	ErrStorageDisabled = errors.New("storage disabled")
	// ErrForbidden is returned when a caller reads someone else's game
	ErrForbidden = errors.New("game belongs to another user")
)

// Service coordinates token handling and game storage
type Service struct {
	store     *storage.Store
	jwtSecret []byte
}

// New creates a new service instance with optional storage
func New(store *storage.Store, jwtSecret []byte) *Service {
	return &Service{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// Store returns the configured store, or nil when storage is disabled
func (s *Service) Store() *storage.Store {
	return s.store
}

// GetStorageHealth returns the storage component status
func (s *Service) GetStorageHealth() string {
	if s.store == nil {
		return "disabled"
	}
	if s.store.IsHealthy() {
		return "ok"
	}
	return "degraded"
}

// GenerateUserToken creates a JWT token for the specified user
func (s *Service) GenerateUserToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	claims := map[string]any{
		"scope": "analysis",
	}

	return auth.GenerateHS256Token(s.jwtSecret, userID, claims, ttl)
}

// ValidateToken verifies JWT token and returns user ID with claims
func (s *Service) ValidateToken(token string) (string, map[string]any, error) {
	return auth.ValidateHS256Token(s.jwtSecret, token)
}

// Shutdown closes the store, draining queued ledger writes
func (s *Service) Shutdown() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}
