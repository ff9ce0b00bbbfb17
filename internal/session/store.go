package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// Data is the server-side state behind a session cookie.
type Data struct {
	Admin     bool      `json:"admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Store keeps session data keyed by opaque id.
type Store interface {
	Get(ctx context.Context, id string) (*Data, error)
	Set(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}
