// Package engineclient implements ports.EngineClient against the trading
// engine's JSON-over-HTTP API.
package engineclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"tradedash/internal/ports"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
)

// Client implements the ports.EngineClient interface over net/http.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	userID     string
	logger     ports.Logger
	tokens     ports.TokenStore // optional session persistence
	maxRetries int
	retryMin   time.Duration
	retryMax   time.Duration

	// Session state. Written by Login/Refresh/Logout, read on every call.
	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// Config holds configuration specific to the engine client adapter.
type Config struct {
	BaseURL        string
	APIKey         string
	UserID         string
	Logger         ports.Logger
	Tokens         ports.TokenStore // optional; persisted session survives restarts
	RequestTimeout time.Duration    // default 10s
	MaxRetries     int              // attempts for idempotent reads, default 3
	RetryMinDelay  time.Duration    // default 250ms
	RetryMaxDelay  time.Duration    // default 2s
}

// New creates a new engine client adapter. If a token store is configured, a
// previously persisted session is restored best-effort.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for engine client")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required for engine client: %w", ports.ErrConfigurationError)
	}
	if cfg.APIKey == "" || cfg.UserID == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or UserID is empty. Login will fail against authenticated endpoints.")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryMin := cfg.RetryMinDelay
	if retryMin <= 0 {
		retryMin = 250 * time.Millisecond
	}
	retryMax := cfg.RetryMaxDelay
	if retryMax <= 0 {
		retryMax = 2 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		userID:     cfg.UserID,
		logger:     cfg.Logger,
		tokens:     cfg.Tokens,
		maxRetries: maxRetries,
		retryMin:   retryMin,
		retryMax:   retryMax,
	}

	if cfg.Tokens != nil {
		if saved, err := cfg.Tokens.LoadTokens(context.Background()); err != nil {
			cfg.Logger.Warn(context.Background(), "Failed to restore persisted session", map[string]interface{}{"error": err.Error()})
		} else if saved != nil {
			c.accessToken = saved.AccessToken
			c.refreshToken = saved.RefreshToken
			c.expiresAt = saved.ExpiresAt
			cfg.Logger.Info(context.Background(), "Restored persisted session", map[string]interface{}{"userID": saved.UserID})
		}
	}

	return c, nil
}

// IsAuthenticated reports whether an unexpired access token is held.
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken != "" && time.Now().Before(c.expiresAt)
}

// Login authenticates with the configured API key and user ID and stores the
// returned session.
func (c *Client) Login(ctx context.Context) (*ports.AuthResponse, error) {
	op := "Login"
	body := map[string]string{"api_key": c.apiKey, "user_id": c.userID}
	var resp ports.AuthResponse
	if err := c.doJSON(ctx, op, http.MethodPost, "/auth/login", nil, body, &resp, false, false); err != nil {
		return nil, err
	}
	c.storeSession(ctx, &resp)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"userID": resp.UserID, "expiresIn": resp.ExpiresIn})
	return &resp, nil
}

// Logout drops the in-memory session and clears persisted tokens.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.clearSession(ctx); err != nil {
		return fmt.Errorf("failed to clear persisted session: %w", err)
	}
	c.logger.Info(ctx, "Session cleared")
	return nil
}

// clearSession drops the in-memory session and clears persisted tokens.
func (c *Client) clearSession(ctx context.Context) error {
	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()

	if c.tokens == nil {
		return nil
	}
	if err := c.tokens.ClearTokens(ctx); err != nil {
		c.logger.Warn(ctx, "Failed to clear persisted session tokens", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// Marketplace retrieves the strategy catalog, optionally filtered.
func (c *Client) Marketplace(ctx context.Context, f ports.StrategyFilter) ([]ports.EngineStrategy, error) {
	op := "Marketplace"
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.AssetClass != "" {
		q.Set("asset_class", f.AssetClass)
	}
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out []ports.EngineStrategy
	if err := c.doJSON(ctx, op, http.MethodGet, "/marketplace", q, nil, &out, true, true); err != nil {
		return nil, err
	}
	return out, nil
}

// Dashboard retrieves the per-user aggregate view.
func (c *Client) Dashboard(ctx context.Context) (*ports.Dashboard, error) {
	op := "Dashboard"
	var out ports.Dashboard
	if err := c.doJSON(ctx, op, http.MethodGet, "/user/dashboard", nil, nil, &out, true, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ActivateStrategy activates a strategy with the given capital allocation.
func (c *Client) ActivateStrategy(ctx context.Context, id string, allocation decimal.Decimal) (*ports.UserStrategy, error) {
	op := "ActivateStrategy"
	body := map[string]interface{}{"allocation_amount": allocation}
	var out ports.UserStrategy
	if err := c.doJSON(ctx, op, http.MethodPost, "/user/activate/"+url.PathEscape(id), nil, body, &out, true, false); err != nil {
		return nil, err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"strategyID": id, "allocation": allocation.String()})
	return &out, nil
}

// DeactivateStrategy stops a running or paused strategy.
func (c *Client) DeactivateStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	return c.strategyControl(ctx, "DeactivateStrategy", "/user/deactivate/", id)
}

// PauseStrategy suspends signal execution without releasing allocation.
func (c *Client) PauseStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	return c.strategyControl(ctx, "PauseStrategy", "/user/pause/", id)
}

// ResumeStrategy resumes a paused strategy.
func (c *Client) ResumeStrategy(ctx context.Context, id string) (*ports.UserStrategy, error) {
	return c.strategyControl(ctx, "ResumeStrategy", "/user/resume/", id)
}

func (c *Client) strategyControl(ctx context.Context, op, prefix, id string) (*ports.UserStrategy, error) {
	var out ports.UserStrategy
	if err := c.doJSON(ctx, op, http.MethodPost, prefix+url.PathEscape(id), nil, nil, &out, true, false); err != nil {
		return nil, err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"strategyID": id, "status": out.Status})
	return &out, nil
}

// UpdateStrategy applies a structural update.
func (c *Client) UpdateStrategy(ctx context.Context, id string, upd ports.StrategyUpdate) (*ports.UserStrategy, error) {
	op := "UpdateStrategy"
	body := map[string]interface{}{}
	if upd.Name != nil {
		body["name"] = *upd.Name
	}
	if upd.Description != nil {
		body["description"] = *upd.Description
	}
	if upd.Timeframe != nil {
		body["timeframe"] = *upd.Timeframe
	}
	if upd.Parameters != nil {
		body["parameters"] = upd.Parameters
	}
	if upd.RiskParameters != nil {
		body["risk_parameters"] = upd.RiskParameters
	}
	if upd.MaxOpenPositions != nil {
		body["max_positions"] = *upd.MaxOpenPositions
	}
	var out ports.UserStrategy
	if err := c.doJSON(ctx, op, http.MethodPut, "/strategies/"+url.PathEscape(id), nil, body, &out, true, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteStrategy removes the per-user strategy record.
func (c *Client) DeleteStrategy(ctx context.Context, id string) error {
	op := "DeleteStrategy"
	return c.doJSON(ctx, op, http.MethodDelete, "/strategies/"+url.PathEscape(id), nil, nil, nil, true, false)
}

// ListOrders retrieves one page of orders in the paginated REST shape.
func (c *Client) ListOrders(ctx context.Context, f ports.OrderFilter) (*ports.OrderPage, error) {
	op := "ListOrders"
	q := url.Values{}
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	if f.Symbol != "" {
		q.Set("symbol", f.Symbol)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	var out ports.OrderPage
	if err := c.doJSON(ctx, op, http.MethodGet, "/orders", q, nil, &out, true, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels an open order and returns the updated record.
func (c *Client) CancelOrder(ctx context.Context, id string) (*ports.APIOrder, error) {
	op := "CancelOrder"
	var out ports.APIOrder
	if err := c.doJSON(ctx, op, http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil, nil, &out, true, false); err != nil {
		return nil, err
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"orderID": id, "status": out.Status})
	return &out, nil
}

// UpdateOrder applies a tags/notes update and returns the updated record.
func (c *Client) UpdateOrder(ctx context.Context, id string, upd ports.OrderUpdate) (*ports.APIOrder, error) {
	op := "UpdateOrder"
	body := map[string]interface{}{}
	if upd.Tags != nil {
		body["tags"] = upd.Tags
	}
	if upd.Notes != nil {
		body["notes"] = *upd.Notes
	}
	var out ports.APIOrder
	if err := c.doJSON(ctx, op, http.MethodPatch, "/orders/"+url.PathEscape(id), nil, body, &out, true, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteOrder removes an order record.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	op := "DeleteOrder"
	return c.doJSON(ctx, op, http.MethodDelete, "/orders/"+url.PathEscape(id), nil, nil, nil, true, false)
}

// --- request plumbing ---

// doJSON issues one logical API call. Idempotent calls are retried up to the
// configured attempt cap on network and 5xx failures with exponential
// backoff; mutating calls are never auto-retried. A 401 on an authenticated
// call triggers one token refresh followed by a single replay; a second 401
// surfaces as a session-expired error.
func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, body, out interface{}, authed, idempotent bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
		}
	}

	b := &backoff.Backoff{Min: c.retryMin, Max: c.retryMax, Factor: 2, Jitter: true}
	refreshed := false
	attempt := 0
	for {
		err := c.doOnce(ctx, op, method, path, query, payload, out, authed)
		if err == nil {
			return nil
		}

		if errors.Is(err, ports.ErrAuthenticationFailed) && authed && !refreshed {
			refreshed = true
			if refreshErr := c.refreshSession(ctx); refreshErr == nil {
				c.logger.Info(ctx, op+": token refreshed, retrying request")
				continue
			}
			// The refresh token is dead too. Drop the session entirely so a
			// restart cannot restore it and replay the same failure.
			c.clearSession(ctx)
			return fmt.Errorf("%s failed: %w: %w", op, ports.ErrSessionExpired, err)
		}

		attempt++
		kind := ports.ClassifyError(err)
		if !idempotent || !kind.Retryable() || attempt >= c.maxRetries || ctx.Err() != nil {
			return err
		}
		delay := b.Duration()
		c.logger.Warn(ctx, op+": retryable failure, backing off", map[string]interface{}{
			"attempt": attempt, "delay": delay.String(), "kind": string(kind), "error": err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s canceled during backoff: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		}
	}
}

// doOnce performs a single HTTP round trip and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, op, method, path string, query url.Values, payload []byte, out interface{}, authed bool) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if authed {
		c.mu.RLock()
		token := c.accessToken
		c.mu.RUnlock()
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s failed reading response: %w: %w", op, ports.ErrConnectionFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classifyStatus(ctx, op, resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s failed to decode response: %w: %w", op, ports.ErrUnknown, err)
		}
	}
	return nil
}

// classifyStatus translates an HTTP error status into the standard error
// taxonomy: 401 authentication, 429 rate-limited, other 4xx validation, 5xx
// remote-internal.
func (c *Client) classifyStatus(ctx context.Context, op string, status int, body []byte) error {
	msg := engineMessage(body)
	fields := map[string]interface{}{"operation": op, "status": status, "message": msg}

	var mapped error
	switch {
	case status == http.StatusUnauthorized:
		mapped = ports.ErrAuthenticationFailed
	case status == http.StatusNotFound:
		mapped = ports.ErrNotFound
	case status == http.StatusTooManyRequests:
		mapped = ports.ErrRateLimited
	case status >= 400 && status < 500:
		mapped = ports.ErrInvalidRequest
	case status >= 500:
		mapped = ports.ErrEngineUnavailable
	default:
		mapped = ports.ErrUnknown
	}

	err := fmt.Errorf("%s failed: %w: engine returned %d: %s", op, mapped, status, msg)
	c.logger.Error(ctx, err, op+" failed with engine error", fields)
	return err
}

// classifyTransportError translates network-level failures.
func (c *Client) classifyTransportError(ctx context.Context, op string, err error) error {
	var finalErr error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &urlErr) && urlErr.Timeout():
		finalErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", op, ports.ErrContextCanceled, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", op, ports.ErrConnectionFailed, err)
	}
	c.logger.Error(ctx, err, op+" failed", map[string]interface{}{"operation": op})
	return finalErr
}

// refreshSession exchanges the refresh token for a new access token.
func (c *Client) refreshSession(ctx context.Context) error {
	op := "RefreshToken"
	c.mu.RLock()
	refresh := c.refreshToken
	c.mu.RUnlock()
	if refresh == "" {
		return fmt.Errorf("%s failed: %w: no refresh token held", op, ports.ErrSessionExpired)
	}

	body := map[string]string{"refresh_token": refresh}
	var resp ports.AuthResponse
	if err := c.doOnceNoAuth(ctx, op, "/auth/refresh", body, &resp); err != nil {
		return err
	}
	c.storeSession(ctx, &resp)
	c.logger.Info(ctx, op+" successful")
	return nil
}

func (c *Client) doOnceNoAuth(ctx context.Context, op, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidRequest, err)
	}
	return c.doOnce(ctx, op, http.MethodPost, path, nil, payload, out, false)
}

// storeSession records the session in memory and persists it when a token
// store is configured.
func (c *Client) storeSession(ctx context.Context, resp *ports.AuthResponse) {
	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	if resp.RefreshToken != "" {
		c.refreshToken = resp.RefreshToken
	}
	c.expiresAt = expiresAt
	refresh := c.refreshToken
	c.mu.Unlock()

	if c.tokens == nil {
		return
	}
	saved := ports.AuthTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: refresh,
		UserID:       resp.UserID,
		ExpiresAt:    expiresAt,
	}
	if err := c.tokens.SaveTokens(ctx, saved); err != nil {
		c.logger.Warn(ctx, "Failed to persist session tokens", map[string]interface{}{"error": err.Error()})
	}
}

// engineMessage extracts the engine's error message from a response body,
// falling back to the raw body.
func engineMessage(body []byte) string {
	var wire struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &wire); err == nil {
		if wire.Message != "" {
			return wire.Message
		}
		if wire.Detail != "" {
			return wire.Detail
		}
	}
	const maxLen = 512
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	return string(body)
}
