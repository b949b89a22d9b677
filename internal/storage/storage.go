// Package storage persists the console's client-side state between runs:
// the bearer token and the cached user profile.
package storage

import (
	"context"
	"errors"
	"fmt"
)

const (
	KeyAccessToken = "accessToken"
	KeyUserProfile = "user"
)

var ErrUnknownType = errors.New("unknown storage type")

// Store is a small string-keyed persistence slot, the equivalent of a browser's localStorage.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// ClearSession wipes the token and the cached profile together. They are never cleared independently.
func ClearSession(ctx context.Context, s Store) error {
	if err := s.Delete(ctx, KeyAccessToken, KeyUserProfile); err != nil {
		return fmt.Errorf("couldn't clear persisted session: %w", err)
	}
	return nil
}

// Token returns the persisted access token, or "" when there is none.
func Token(ctx context.Context, s Store) (string, error) {
	tok, ok, err := s.Get(ctx, KeyAccessToken)
	if err != nil || !ok {
		return "", err
	}
	return tok, nil
}
