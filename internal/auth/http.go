package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/retry"
)

// TokenError is a non-2xx response from the token endpoint.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true if the request should be retried.
func (e *TokenError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// HTTPConfig configures HTTPProvider.
type HTTPConfig struct {
	URL          string // Token endpoint
	ClientID     string
	ClientSecret string

	// RefreshInterval is used when the token carries no expiry.
	RefreshInterval time.Duration

	// RefreshBefore is how long before a JWT's exp a new token is fetched.
	RefreshBefore time.Duration

	Timeout time.Duration // Per-request timeout
	Retry   retry.Config  // Retries within one fetch
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		RefreshInterval: 15 * time.Minute,
		RefreshBefore:   30 * time.Second,
		Timeout:         10 * time.Second,
		Retry: retry.Config{
			MaxAttempts: 3,
			Delay:       500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
			Kind:        retry.KindExponential,
			Jitter:      true,
		},
	}
}

// HTTPConfigFrom maps the auth section of a config file.
func HTTPConfigFrom(cfg config.AuthConfig) HTTPConfig {
	out := DefaultHTTPConfig()
	out.URL = cfg.TokenURL
	out.ClientID = cfg.ClientID
	out.ClientSecret = cfg.ClientSecret
	if cfg.RefreshInterval > 0 {
		out.RefreshInterval = cfg.RefreshInterval
	}
	if cfg.RefreshBefore > 0 {
		out.RefreshBefore = cfg.RefreshBefore
	}
	return out
}

const minRefresh = time.Second

// tokenResponse accepts the OAuth2 field name and the shorter "token".
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

// HTTPProvider fetches credentials from a token endpoint using the client
// credentials grant and keeps them fresh.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
	logger *slog.Logger
	n      notifier

	mu      sync.RWMutex
	token   string
	expires time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHTTPProvider creates a provider. A nil client uses http.DefaultClient.
func NewHTTPProvider(cfg HTTPConfig, client *http.Client, logger *slog.Logger) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "token_provider"),
		n:      newNotifier(),
	}
}

// Token returns the current credential.
func (p *HTTPProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Changes returns the change signal.
func (p *HTTPProvider) Changes() <-chan struct{} {
	return p.n.ch
}

// Start fetches the first token and begins the refresh loop. It fails if
// the first fetch fails.
func (p *HTTPProvider) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := p.refresh(); err != nil {
		p.cancel()
		return fmt.Errorf("initial token fetch: %w", err)
	}

	p.wg.Add(1)
	go p.run()

	p.logger.Info("token provider started", "url", p.cfg.URL)
	return nil
}

// Stop ends the refresh loop.
func (p *HTTPProvider) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("token provider stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run refreshes the token on schedule until stopped.
func (p *HTTPProvider) run() {
	defer p.wg.Done()

	timer := time.NewTimer(p.nextRefresh())
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.refresh(); err != nil {
			// Keep serving the old token; the server decides whether it
			// is still good.
			p.logger.Warn("token refresh failed", "error", err)
			timer.Reset(max(p.cfg.RefreshInterval, minRefresh))
			continue
		}
		timer.Reset(p.nextRefresh())
	}
}

// nextRefresh returns the delay until the current token should be replaced.
func (p *HTTPProvider) nextRefresh() time.Duration {
	p.mu.RLock()
	expires := p.expires
	p.mu.RUnlock()

	if expires.IsZero() {
		return max(p.cfg.RefreshInterval, minRefresh)
	}
	return max(time.Until(expires)-p.cfg.RefreshBefore, minRefresh)
}

// refresh fetches a token with retries and publishes it if it changed.
func (p *HTTPProvider) refresh() error {
	var resp tokenResponse
	err := retry.Do(p.ctx, p.cfg.Retry, func(ctx context.Context) error {
		r, err := p.fetch(ctx)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return err
	}

	token := resp.AccessToken
	if token == "" {
		token = resp.Token
	}

	expires, ok := ExpiresAt(token)
	if !ok && resp.ExpiresIn > 0 {
		expires = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	p.mu.Lock()
	changed := token != p.token
	p.token = token
	p.expires = expires
	p.mu.Unlock()

	p.logger.Debug("token fetched", "changed", changed, "expires", expires)

	if changed {
		p.n.notify()
	}
	return nil
}

// fetch performs one token request.
func (p *HTTPProvider) fetch(ctx context.Context) (tokenResponse, error) {
	var out tokenResponse

	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	if p.cfg.ClientID != "" {
		form.Set("client_id", p.cfg.ClientID)
	}
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return out, &retry.Permanent{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		tokenErr := &TokenError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if !tokenErr.IsRetryable() {
			return out, &retry.Permanent{Err: tokenErr}
		}
		return out, tokenErr
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, &retry.Permanent{Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if out.AccessToken == "" && out.Token == "" {
		return out, &retry.Permanent{Err: ErrNoToken}
	}

	return out, nil
}
