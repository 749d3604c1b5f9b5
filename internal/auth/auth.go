package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	JSONContentType       = "application/json"
	URLEncodedContentType = "application/x-www-form-urlencoded"
)

const (
	DefaultRotateInterval = time.Minute * 20
	expiryLeeway          = time.Minute
)

type AuthErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix milliseconds
}

func (t Token) expired(now time.Time) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return now.Add(expiryLeeway).After(time.UnixMilli(t.ExpiresAt))
}

// AuthenticationHandler obtains OAuth client-credentials tokens and rotates
// them in the background. It is a TokenSource.
type AuthenticationHandler struct {
	authURL        string
	scope          string
	clientID       string
	clientSecret   string
	httpClient     *http.Client
	rotateInterval time.Duration

	mu    sync.RWMutex
	token Token
}

var _ TokenSource = (*AuthenticationHandler)(nil)

// NewAuthenticationHandler fetches the initial token.
func NewAuthenticationHandler(ctx context.Context, authURL, scope, clientID, clientSecret string, httpClient *http.Client) (*AuthenticationHandler, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	authHandler := &AuthenticationHandler{
		authURL:        authURL,
		scope:          scope,
		clientID:       clientID,
		clientSecret:   clientSecret,
		httpClient:     httpClient,
		rotateInterval: DefaultRotateInterval,
	}
	initialToken, err := authHandler.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get initial access token: %w", err)
	}
	authHandler.token = *initialToken
	return authHandler, nil
}

// Token returns the current access token, refreshing it first when expired.
func (ah *AuthenticationHandler) Token(ctx context.Context) (string, error) {
	ah.mu.RLock()
	current := ah.token
	ah.mu.RUnlock()

	if !current.expired(time.Now()) {
		return current.AccessToken, nil
	}
	if err := ah.rotateToken(ctx); err != nil {
		return "", err
	}

	ah.mu.RLock()
	defer ah.mu.RUnlock()
	return ah.token.AccessToken, nil
}

func (ah *AuthenticationHandler) getAccessToken(ctx context.Context) (*Token, error) {
	payload := strings.NewReader("scope=" + ah.scope)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ah.authURL, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}

	authSecret := generateAuthSecret(ah.clientID, ah.clientSecret)
	req.Header.Add("Content-Type", URLEncodedContentType)
	req.Header.Add("Accept", JSONContentType)
	req.Header.Add("RqUID", uuid.NewString())
	req.Header.Add("Authorization", "Basic "+authSecret)

	res, err := ah.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send auth request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		authErr := AuthErrorResponse{}
		if err := json.Unmarshal(body, &authErr); err != nil {
			return nil, fmt.Errorf("auth request failed: status code %d", res.StatusCode)
		}
		return nil, fmt.Errorf("auth request failed: status code %d, error code %d, message %s", res.StatusCode, authErr.Code, authErr.Message)
	}

	accessToken := Token{}
	if err := json.Unmarshal(body, &accessToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth response body: %w", err)
	}
	if accessToken.AccessToken == "" {
		return nil, fmt.Errorf("auth response carries no access token")
	}
	return &accessToken, nil
}

// Run rotates the token every rotate interval until ctx is done.
func (ah *AuthenticationHandler) Run(ctx context.Context) *sync.WaitGroup {
	ticker := time.NewTicker(ah.rotateInterval)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := ah.rotateToken(ctx); err != nil {
					slog.Error("Access token rotation error", "error", err)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return wg
}

// rotateToken replaces the token; on failure the previous token is kept.
func (ah *AuthenticationHandler) rotateToken(ctx context.Context) error {
	newToken, err := ah.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to get new access token for rotation: %w", err)
	}

	ah.mu.Lock()
	ah.token = *newToken
	ah.mu.Unlock()

	slog.Info("Access token rotated successfully", slog.Int64("expires_at", newToken.ExpiresAt))
	return nil
}

func generateAuthSecret(clientID, clientSecret string) string {
	authSecret := fmt.Sprintf("%s:%s", clientID, clientSecret)
	return base64.StdEncoding.EncodeToString([]byte(authSecret))
}
