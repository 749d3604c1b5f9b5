package auth

import (
	"context"
	"errors"
)

var ErrNoToken = errors.New("no access token configured")

// TokenSource supplies the bearer token for provider requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed API key.
type Static string

func (s Static) Token(context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}
