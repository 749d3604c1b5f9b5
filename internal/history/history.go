// Package history is the client of the chat message persistence service.
// Failures never reach callers: writes are dropped and reads come back empty.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
)

const (
	chatsPath  = "/api/chats"
	healthPath = "/healthz"
)

type createRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	IsUser    bool   `json:"isUser"`
	UserID    string `json:"userId,omitempty"`
}

type Client struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// NewClient creates a client for the service at baseURL. token and userID
// are optional.
func NewClient(baseURL, token, userID string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		userID:     userID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SaveMessage stores one message. It is best-effort: failures are logged and
// not retried.
func (c *Client) SaveMessage(ctx context.Context, sessionID, content string, isUser bool) {
	if err := c.save(ctx, createRequest{
		SessionID: sessionID,
		Message:   content,
		IsUser:    isUser,
		UserID:    c.userID,
	}); err != nil {
		slog.Error("Failed to save chat message",
			"error", err,
			slog.String("session_id", sessionID),
			slog.Bool("is_user", isUser),
		)
	}
}

// FetchHistory returns the messages of a session, oldest first. Any failure
// yields an empty history.
func (c *Client) FetchHistory(ctx context.Context, sessionID string) []chat.Message {
	records, err := c.list(ctx, sessionID)
	if err != nil {
		slog.Error("Failed to fetch chat history", "error", err, slog.String("session_id", sessionID))
		return []chat.Message{}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})

	messages := make([]chat.Message, 0, len(records))
	for _, r := range records {
		messages = append(messages, r.ToMessage())
	}

	slog.Debug("fetched chat history",
		slog.String("session_id", sessionID),
		slog.Int("count", len(messages)),
	)
	return messages
}

// CheckHealth reports whether the service answers its health endpoint.
func (c *Client) CheckHealth(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return false
	}
	res, err := c.do(req)
	if err != nil {
		slog.Warn("Persistence service health check failed", "error", err)
		return false
	}
	defer res.Body.Close()

	return res.StatusCode == http.StatusOK
}

func (c *Client) save(ctx context.Context, body createRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatsPath, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusCreated {
		return statusError(res)
	}
	return nil
}

func (c *Client) list(ctx context.Context, sessionID string) ([]chat.Record, error) {
	query := url.Values{}
	query.Set("sessionId", sessionID)
	if c.userID != "" {
		query.Set("userId", c.userID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+chatsPath+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build history request: %w", err)
	}

	res, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, statusError(res)
	}

	var records []chat.Record
	if err := json.NewDecoder(res.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode chat history: %w", err)
	}
	return records, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach persistence service: %w", err)
	}
	return res, nil
}

func statusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("persistence service: status code %d, error %s", res.StatusCode, apiErr.Error)
	}
	return fmt.Errorf("persistence service: status code %d", res.StatusCode)
}
