package memory

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned for absent or expired keys, and for reads a
	// caller is not allowed to see (absence, not authorization failure).
	ErrNotFound = errors.New("memory item not found")
	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("memory store is closed")
	// ErrInvalidInput covers malformed scopes and empty keys.
	ErrInvalidInput = errors.New("invalid input")
)

// Item is one memory entry. Version increments monotonically per key under
// last-write-wins.
type Item struct {
	Key       string    `json:"key"`
	Content   string    `json:"content,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Scope     Scope     `json:"scope"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"` // zero means no TTL
	Version   int64     `json:"version"`
}

// Expired reports whether the item is past its TTL at the given time.
func (it *Item) Expired(now time.Time) bool {
	return !it.ExpiresAt.IsZero() && now.After(it.ExpiresAt)
}

// Store is the backend interface. Implementations serialize writes so a
// single engine writer observes last-write-wins with monotonic versions.
type Store interface {
	Put(ctx context.Context, scope Scope, key, content string, payload any, ttl time.Duration) (*Item, error)
	Get(ctx context.Context, scope Scope, key string) (*Item, error)
	Delete(ctx context.Context, scope Scope, key string) error
	Keys(ctx context.Context, scope Scope, pattern string) ([]string, error)
	DropScope(ctx context.Context, scope Scope) error
	Close() error
}

// matchWildcard matches pattern against s where '*' matches any run of
// characters. An empty pattern matches everything.
func matchWildcard(pattern, s string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return matchParts(pattern, s)
}

func matchParts(pattern, s string) bool {
	for len(pattern) > 0 {
		if pattern[0] == '*' {
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchParts(pattern, s[i:]) {
					return true
				}
			}
			return false
		}
		if len(s) == 0 || pattern[0] != s[0] {
			return false
		}
		pattern = pattern[1:]
		s = s[1:]
	}
	return len(s) == 0
}
