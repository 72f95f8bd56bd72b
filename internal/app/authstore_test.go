package app

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradedash/internal/ports"
)

// mockTokenStore is an in-memory ports.TokenStore.
type mockTokenStore struct {
	mu     sync.Mutex
	tokens *ports.AuthTokens
}

func (m *mockTokenStore) SaveTokens(ctx context.Context, t ports.AuthTokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := t
	m.tokens = &cp
	return nil
}

func (m *mockTokenStore) LoadTokens(ctx context.Context) (*ports.AuthTokens, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		return nil, nil
	}
	cp := *m.tokens
	return &cp, nil
}

func (m *mockTokenStore) ClearTokens(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = nil
	return nil
}

func newTestAuthStore(t *testing.T, client *mockEngineClient, tokens ports.TokenStore) *AuthStore {
	t.Helper()
	store, err := NewAuthStore(AuthStoreConfig{
		Client: client,
		Tokens: tokens,
		Logger: &mockLogger{},
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return store
}

func TestAuthStoreLogin(t *testing.T) {
	client := newMockEngineClient()
	client.loginResp = &ports.AuthResponse{
		AccessToken: "token-1",
		UserID:      "u1",
		ExpiresIn:   3600,
		Permissions: []string{"orders:read"},
	}
	store := newTestAuthStore(t, client, nil)

	require.NoError(t, store.Login(context.Background()))

	snap := store.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, []string{"orders:read"}, snap.Permissions)
	assert.Equal(t, testNow.Add(time.Hour), snap.ExpiresAt)
	assert.True(t, store.IsAuthenticated())
}

func TestAuthStoreLogin_Failure(t *testing.T) {
	client := newMockEngineClient()
	client.loginErr = fmt.Errorf("bad key: %w", ports.ErrAuthenticationFailed)
	store := newTestAuthStore(t, client, nil)

	err := store.Login(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	assert.False(t, store.IsAuthenticated())

	var actionErr *ports.ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, ports.KindAuthentication, actionErr.Kind)
}

func TestAuthStoreLogout_DropsLocalStateEvenOnRemoteFailure(t *testing.T) {
	client := newMockEngineClient()
	client.loginResp = &ports.AuthResponse{AccessToken: "token-1", UserID: "u1", ExpiresIn: 3600}
	store := newTestAuthStore(t, client, nil)
	require.NoError(t, store.Login(context.Background()))

	client.logoutErr = fmt.Errorf("unreachable: %w", ports.ErrConnectionFailed)
	err := store.Logout(context.Background())
	require.Error(t, err)
	assert.False(t, store.IsAuthenticated(), "local session dropped regardless")
	assert.Empty(t, store.Snapshot().UserID)
}

func TestAuthStoreRestore(t *testing.T) {
	client := newMockEngineClient()

	t.Run("no persisted session", func(t *testing.T) {
		store := newTestAuthStore(t, client, &mockTokenStore{})
		restored, err := store.Restore(context.Background())
		require.NoError(t, err)
		assert.False(t, restored)
	})

	t.Run("valid persisted session", func(t *testing.T) {
		tokens := &mockTokenStore{}
		require.NoError(t, tokens.SaveTokens(context.Background(), ports.AuthTokens{
			AccessToken: "token-1",
			UserID:      "u1",
			ExpiresAt:   testNow.Add(time.Hour),
		}))
		store := newTestAuthStore(t, client, tokens)
		restored, err := store.Restore(context.Background())
		require.NoError(t, err)
		assert.True(t, restored)
		assert.True(t, store.IsAuthenticated())
		assert.Equal(t, "u1", store.Snapshot().UserID)
		assert.Equal(t, 0, client.callCount("Login"), "restore never issues a login")
	})

	t.Run("expired persisted session is ignored", func(t *testing.T) {
		tokens := &mockTokenStore{}
		require.NoError(t, tokens.SaveTokens(context.Background(), ports.AuthTokens{
			AccessToken: "token-1",
			UserID:      "u1",
			ExpiresAt:   testNow.Add(-time.Minute),
		}))
		store := newTestAuthStore(t, client, tokens)
		restored, err := store.Restore(context.Background())
		require.NoError(t, err)
		assert.False(t, restored)
		assert.False(t, store.IsAuthenticated())
	})
}
