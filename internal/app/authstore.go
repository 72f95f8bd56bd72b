package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradedash/internal/ports"
)

// AuthSnapshot is a point-in-time copy of the session state.
type AuthSnapshot struct {
	Authenticated bool
	UserID        string
	Permissions   []string
	ExpiresAt     time.Time
	LastError     error
}

// AuthStore orchestrates the session lifecycle. The engine client owns token
// storage and refresh; this store tracks whether the dashboard considers
// itself logged in and surfaces authentication failures.
type AuthStore struct {
	client ports.EngineClient
	tokens ports.TokenStore
	logger ports.Logger
	now    func() time.Time

	mu            sync.RWMutex
	authenticated bool
	userID        string
	permissions   []string
	expiresAt     time.Time
	lastError     error
}

// AuthStoreConfig holds the dependencies for an AuthStore.
type AuthStoreConfig struct {
	Client ports.EngineClient
	Tokens ports.TokenStore // optional, enables session restore
	Logger ports.Logger
	Now    func() time.Time
}

// NewAuthStore creates a new auth store.
func NewAuthStore(cfg AuthStoreConfig) (*AuthStore, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("engine client is required for auth store")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for auth store")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &AuthStore{
		client: cfg.Client,
		tokens: cfg.Tokens,
		logger: cfg.Logger,
		now:    cfg.Now,
	}, nil
}

// Login authenticates against the engine with the configured credentials.
func (s *AuthStore) Login(ctx context.Context) error {
	op := "Login"

	resp, err := s.client.Login(ctx)
	if err != nil {
		actionErr := ports.NewActionError(op, "", err)
		s.mu.Lock()
		s.authenticated = false
		s.lastError = actionErr
		s.mu.Unlock()
		s.logger.Error(ctx, err, "Login failed")
		return actionErr
	}

	s.mu.Lock()
	s.authenticated = true
	s.userID = resp.UserID
	s.permissions = append([]string(nil), resp.Permissions...)
	s.expiresAt = s.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	s.lastError = nil
	s.mu.Unlock()

	s.logger.Info(ctx, "Logged in", map[string]interface{}{"userID": resp.UserID})
	return nil
}

// Logout drops the session. The engine client clears both in-memory and
// persisted tokens; local state is reset even if the remote call fails.
func (s *AuthStore) Logout(ctx context.Context) error {
	op := "Logout"

	err := s.client.Logout(ctx)

	s.mu.Lock()
	s.authenticated = false
	s.userID = ""
	s.permissions = nil
	s.expiresAt = time.Time{}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn(ctx, "Logout remote call failed, local session dropped anyway", map[string]interface{}{"error": err.Error()})
		return ports.NewActionError(op, "", err)
	}
	s.logger.Info(ctx, "Logged out")
	return nil
}

// Restore adopts a persisted session from a previous run, if one exists and
// has not expired. Returns true when a session was restored.
func (s *AuthStore) Restore(ctx context.Context) (bool, error) {
	if s.tokens == nil {
		return false, nil
	}
	t, err := s.tokens.LoadTokens(ctx)
	if err != nil {
		return false, fmt.Errorf("session restore failed: %w", err)
	}
	if t == nil || (!t.ExpiresAt.IsZero() && t.ExpiresAt.Before(s.now())) {
		return false, nil
	}

	s.mu.Lock()
	s.authenticated = true
	s.userID = t.UserID
	s.expiresAt = t.ExpiresAt
	s.lastError = nil
	s.mu.Unlock()

	s.logger.Info(ctx, "Session restored", map[string]interface{}{"userID": t.UserID})
	return true, nil
}

// Snapshot returns a copy of the session state.
func (s *AuthStore) Snapshot() AuthSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return AuthSnapshot{
		Authenticated: s.authenticated,
		UserID:        s.userID,
		Permissions:   append([]string(nil), s.permissions...),
		ExpiresAt:     s.expiresAt,
		LastError:     s.lastError,
	}
}

// IsAuthenticated reports whether a session is held.
func (s *AuthStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}
