package auth

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	tok, err := Static("gsk_123").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gsk_123", tok)

	_, err = Static("").Token(context.Background())
	assert.ErrorIs(t, err, ErrNoToken)
}

func newOAuthServer(t *testing.T, calls *atomic.Int32, expiresAt func() int64) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "scope=PERS", string(body))
		assert.Equal(t, URLEncodedContentType, r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("RqUID"))
		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("id:secret"))
		assert.Equal(t, want, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", JSONContentType)
		_, _ = fmt.Fprintf(w, `{"access_token":"tok-%d","expires_at":%d}`, n, expiresAt())
	}))
}

func TestAuthenticationHandlerInitialAndExpiredRefresh(t *testing.T) {
	var calls atomic.Int32
	expiry := time.Now().Add(time.Hour).UnixMilli()
	srv := newOAuthServer(t, &calls, func() int64 { return expiry })
	defer srv.Close()

	ah, err := NewAuthenticationHandler(context.Background(), srv.URL, "PERS", "id", "secret", srv.Client())
	require.NoError(t, err)

	tok, err := ah.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)
	assert.Equal(t, int32(1), calls.Load())

	ah.mu.Lock()
	ah.token.ExpiresAt = time.Now().Add(-time.Minute).UnixMilli()
	ah.mu.Unlock()

	tok, err = ah.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestAuthenticationHandlerRunRotates(t *testing.T) {
	var calls atomic.Int32
	srv := newOAuthServer(t, &calls, func() int64 { return 0 })
	defer srv.Close()

	ah, err := NewAuthenticationHandler(context.Background(), srv.URL, "PERS", "id", "secret", srv.Client())
	require.NoError(t, err)
	ah.rotateInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	wg := ah.Run(ctx)
	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	wg.Wait()

	tok, err := ah.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "tok-1", tok)
}

func TestAuthenticationHandlerErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"code":6,"message":"credentials doesn't match db data"}`)
	}))
	defer srv.Close()

	_, err := NewAuthenticationHandler(context.Background(), srv.URL, "PERS", "id", "bad", srv.Client())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status code 401")
	assert.Contains(t, err.Error(), "credentials doesn't match db data")
}

func TestRequireToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireToken(next)

	req := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodOptions, "/api/chats", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(req))

	req.Header.Set("Authorization", "bearer  abc ")
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(req))
}
