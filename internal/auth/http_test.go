package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/realtime-client/internal/config"
	"github.com/rickgao/realtime-client/internal/retry"
)

func testHTTPConfig(url string) HTTPConfig {
	cfg := DefaultHTTPConfig()
	cfg.URL = url
	cfg.ClientID = "client"
	cfg.ClientSecret = "secret"
	cfg.Retry = retry.Config{MaxAttempts: 2, Delay: time.Millisecond}
	return cfg
}

func TestHTTPProvider_Start(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	}))
	defer server.Close()

	p := NewHTTPProvider(testHTTPConfig(server.URL), nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	assert.Equal(t, "tok-1", p.Token())

	select {
	case <-p.Changes():
	default:
		t.Fatal("first token should signal a change")
	}

	next := p.nextRefresh()
	assert.Greater(t, next, 50*time.Minute)
	assert.LessOrEqual(t, next, time.Hour)
}

func TestHTTPProvider_ShortTokenField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"token":"short"}`)
	}))
	defer server.Close()

	p := NewHTTPProvider(testHTTPConfig(server.URL), nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	assert.Equal(t, "short", p.Token())
	assert.Equal(t, p.cfg.RefreshInterval, p.nextRefresh())
}

func TestHTTPProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"access_token":"ok"}`)
	}))
	defer server.Close()

	p := NewHTTPProvider(testHTTPConfig(server.URL), nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ok", p.Token())
}

func TestHTTPProvider_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad client", http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewHTTPProvider(testHTTPConfig(server.URL), nil, nil)
	err := p.Start(context.Background())
	require.Error(t, err)

	var tokenErr *TokenError
	require.ErrorAs(t, err, &tokenErr)
	assert.Equal(t, http.StatusUnauthorized, tokenErr.StatusCode)
	assert.Equal(t, "bad client", tokenErr.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPProvider_EmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	p := NewHTTPProvider(testHTTPConfig(server.URL), nil, nil)
	assert.ErrorIs(t, p.Start(context.Background()), ErrNoToken)
}

func TestHTTPProvider_RefreshBeforeJWTExpiry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ID:        fmt.Sprint(n),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(2 * time.Second)),
		}).SignedString([]byte("k"))
		fmt.Fprintf(w, `{"access_token":%q}`, tok)
	}))
	defer server.Close()

	cfg := testHTTPConfig(server.URL)
	cfg.RefreshBefore = 2 * time.Second // refresh as soon as allowed

	p := NewHTTPProvider(cfg, nil, nil)
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(context.Background())

	first := p.Token()
	<-p.Changes()

	select {
	case <-p.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("token was not refreshed")
	}
	assert.NotEqual(t, first, p.Token())
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestTokenError_IsRetryable(t *testing.T) {
	assert.True(t, (&TokenError{StatusCode: 500}).IsRetryable())
	assert.True(t, (&TokenError{StatusCode: 429}).IsRetryable())
	assert.False(t, (&TokenError{StatusCode: 403}).IsRetryable())
}

func TestHTTPConfigFrom(t *testing.T) {
	got := HTTPConfigFrom(config.AuthConfig{
		TokenURL:      "https://auth.example.com/token",
		ClientID:      "id",
		ClientSecret:  "secret",
		RefreshBefore: time.Minute,
	})

	assert.Equal(t, "https://auth.example.com/token", got.URL)
	assert.Equal(t, "id", got.ClientID)
	assert.Equal(t, "secret", got.ClientSecret)
	assert.Equal(t, time.Minute, got.RefreshBefore)
	assert.Equal(t, DefaultHTTPConfig().RefreshInterval, got.RefreshInterval)
	assert.Equal(t, DefaultHTTPConfig().Retry, got.Retry)
}
