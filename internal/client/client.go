// Package client talks to an OpenAI-compatible chat completions provider.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gennadis/virtualparent/internal/auth"
	"github.com/gennadis/virtualparent/internal/chat"
	"github.com/gennadis/virtualparent/internal/config"
)

const (
	JSONContentType        = "application/json"
	EventStreamContentType = "text/event-stream"
)

var (
	ErrEmptyResponse     = errors.New("empty completion response")
	ErrMalformedResponse = errors.New("malformed completion response")
)

type ApiErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// APIError is a non-200 provider response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api request failed: status code %d, message %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

type Client struct {
	httpClient *http.Client
	Config     *config.Config
	tokens     auth.TokenSource
	model      chat.ChatModel
	retries    int
	retryDelay time.Duration
}

// NewClient creates a provider client. The HTTP timeout bounds a whole
// request, stream included.
func NewClient(cfg *config.Config, tokens auth.TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		Config:     cfg,
		tokens:     tokens,
		model:      chat.ChatModel(cfg.Model),
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
	}
}

// CheckHealth sends a minimal request and reports whether the provider answered.
func (c *Client) CheckHealth(ctx context.Context) bool {
	request := &chat.ChatRequest{
		Model:       c.model,
		Messages:    []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "ping"}},
		ChatOptions: chat.ChatOptions{MaxTokens: 1},
	}
	res, err := c.send(ctx, request, JSONContentType)
	if err != nil {
		slog.Warn("Completion provider health check failed", "error", err)
		return false
	}
	defer res.Body.Close()

	var chatResp chat.ChatResponse
	if err := json.NewDecoder(res.Body).Decode(&chatResp); err != nil {
		slog.Warn("Completion provider health check returned malformed body", "error", err)
		return false
	}
	return true
}

// complete performs a single non-streamed request.
func (c *Client) complete(ctx context.Context, request *chat.ChatRequest) (string, error) {
	res, err := c.send(ctx, request, JSONContentType)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	chatResp := chat.ChatResponse{}
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	content := chatResp.Content()
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func (c *Client) send(ctx context.Context, request *chat.ChatRequest, accept string) (*http.Response, error) {
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	completionsPath := c.Config.BaseURL + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsPath, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}
	req.Header.Set("Content-Type", JSONContentType)
	req.Header.Set("Accept", accept)
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		body, _ := io.ReadAll(res.Body)
		return nil, handleApiError(res, body)
	}
	return res, nil
}

func handleApiError(res *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	errResp := ApiErrorResponse{}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != nil && errResp.Error.Message != "":
			apiErr.Message = errResp.Error.Message
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		}
	}
	return apiErr
}
