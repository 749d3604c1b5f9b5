package client

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/gennadis/virtualparent/internal/chat"
)

// Respond streams a reply to messages. Failures before the first fragment
// are retried; when retries run out the fallback response is yielded as the
// only fragment. The sequence never ends empty unless the consumer stops it.
func (c *Client) Respond(ctx context.Context, messages []chat.ChatMessage, mode chat.ResponseMode) iter.Seq[string] {
	return func(yield func(string) bool) {
		request := chat.NewChatRequest(c.model, withSystemPrompt(messages), mode, true)
		c.respond(ctx, request, yield, c.retries)
	}
}

func (c *Client) respond(ctx context.Context, request *chat.ChatRequest, yield func(string) bool, retries int) {
	delivered := false
	var streamErr error
	for fragment, err := range c.Stream(ctx, request) {
		if err != nil {
			streamErr = err
			break
		}
		delivered = true
		if !yield(fragment) {
			return
		}
	}

	if delivered {
		// retrying would repeat what the consumer already has
		if streamErr != nil {
			slog.Warn("Completion stream interrupted", "error", streamErr)
		}
		return
	}
	if streamErr == nil {
		streamErr = ErrEmptyResponse
	}

	slog.Error("Failed to get chat completion", "error", streamErr, slog.Int("retries_left", retries))
	if retries > 0 && c.retryable(ctx, streamErr) && c.wait(ctx) == nil {
		c.respond(ctx, request, yield, retries-1)
		return
	}
	yield(FallbackResponse)
}

// Complete returns a non-streamed reply to messages, or the fallback
// response once retries run out.
func (c *Client) Complete(ctx context.Context, messages []chat.ChatMessage, mode chat.ResponseMode) string {
	request := chat.NewChatRequest(c.model, withSystemPrompt(messages), mode, false)
	return c.completeWithRetry(ctx, request, c.retries)
}

func (c *Client) completeWithRetry(ctx context.Context, request *chat.ChatRequest, retries int) string {
	text, err := c.complete(ctx, request)
	if err == nil {
		return text
	}

	slog.Error("Failed to get chat completion", "error", err, slog.Int("retries_left", retries))
	if retries > 0 && c.retryable(ctx, err) && c.wait(ctx) == nil {
		return c.completeWithRetry(ctx, request, retries-1)
	}
	return FallbackResponse
}

// GetResponse answers a single user message. With a non-nil onChunk the reply
// is streamed and onChunk sees every fragment in order; the full text is
// returned either way.
func (c *Client) GetResponse(ctx context.Context, userMessage string, onChunk func(string)) string {
	if strings.TrimSpace(userMessage) == "" {
		return FallbackResponse
	}
	messages := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: userMessage}}

	if onChunk == nil {
		return c.Complete(ctx, messages, chat.ModeShort)
	}

	var full strings.Builder
	for fragment := range c.Respond(ctx, messages, chat.ModeShort) {
		onChunk(fragment)
		full.WriteString(fragment)
	}
	return full.String()
}

// Greeting produces the opening assistant message of a new session, or the
// canned greeting when the provider is unavailable.
func (c *Client) Greeting(ctx context.Context) string {
	if !c.CheckHealth(ctx) {
		return DefaultGreeting
	}

	messages := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: greetingPrompt}}
	request := chat.NewChatRequest(c.model, withSystemPrompt(messages), chat.ModeShort, false)
	text, err := c.complete(ctx, request)
	if err != nil {
		slog.Error("Failed to get greeting", "error", err)
		return DefaultGreeting
	}
	return text
}

func (c *Client) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

func (c *Client) wait(ctx context.Context) error {
	timer := time.NewTimer(c.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
