// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package revocation stores revoked token IDs in Redis until the tokens
// would have expired anyway.
package revocation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/authgate/internal/auth"
)

// DefaultPrefix namespaces deny-list keys.
const DefaultPrefix = "authgate:revoked:"

// RedisDenylist implements auth.Denylist with one expiring key per token ID.
type RedisDenylist struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// Option configures a RedisDenylist.
type Option func(*RedisDenylist)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(d *RedisDenylist) {
		if prefix != "" {
			d.prefix = prefix
		}
	}
}

// WithClock overrides the clock used to compute key TTLs.
func WithClock(now func() time.Time) Option {
	return func(d *RedisDenylist) { d.now = now }
}

// NewRedisDenylist wraps an existing client.
func NewRedisDenylist(client redis.Cmdable, opts ...Option) *RedisDenylist {
	d := &RedisDenylist{client: client, prefix: DefaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ auth.Denylist = (*RedisDenylist)(nil)

// Dial connects to addr and checks the server answers.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", addr).Wrap(err)
	}
	return client, nil
}

func (d *RedisDenylist) key(tokenID string) string {
	return d.prefix + tokenID
}

// Revoke denies tokenID until until. Tokens already past until are skipped.
func (d *RedisDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.key(tokenID), 1, ttl).Err(); err != nil {
		return oops.Code("REVOCATION_WRITE_FAILED").With("token_id", tokenID).Wrap(err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked.
func (d *RedisDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(tokenID)).Result()
	if err != nil {
		return false, oops.Code("REVOCATION_READ_FAILED").With("token_id", tokenID).Wrap(err)
	}
	return n > 0, nil
}

// Ping checks the Redis server answers.
func (d *RedisDenylist) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx).Err(); err != nil {
		return oops.Code("REVOCATION_PING_FAILED").Wrap(err)
	}
	return nil
}
