package redisrev

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedTokenKeyPrefix = "civreg:trl:jti:"

// List is a Redis-backed token revocation list. Entries expire with the
// token they revoke, so the list never outgrows the live token set.
type List struct {
	client redis.UniversalClient
	prefix string
}

// Option configures List.
type Option func(*List)

// WithPrefix overrides the key prefix, e.g. to share one Redis between
// environments.
func WithPrefix(prefix string) Option {
	return func(l *List) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *List {
	l := &List{client: client, prefix: revokedTokenKeyPrefix}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Revoke marks tokenID as revoked for ttl.
func (l *List) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" || ttl <= 0 {
		return nil
	}
	return l.client.Set(ctx, l.prefix+tokenID, "1", ttl).Err()
}

// IsRevoked reports whether tokenID is on the list.
func (l *List) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	err := l.client.Get(ctx, l.prefix+tokenID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ping checks the connection.
func (l *List) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
