// Package kredis shares profile records between processes through Redis.
package kredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/profile"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultPrefix = "mentorship:profile:"

// ProfileCache is a read-through, write-through profile.Store decorator.
// Redis failures are logged and fall back to the inner store; they never fail
// a read the inner store can serve.
type ProfileCache struct {
	client redis.UniversalClient
	next   profile.Store
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

var _ profile.Store = (*ProfileCache)(nil)

type Option func(*ProfileCache)

func WithPrefix(prefix string) Option {
	return func(c *ProfileCache) { c.prefix = prefix }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *ProfileCache) { c.log = l }
}

// NewProfileCache wraps next. A ttl of zero keeps entries until they are
// overwritten or invalidated.
func NewProfileCache(client redis.UniversalClient, next profile.Store, ttl time.Duration, opts ...Option) *ProfileCache {
	c := &ProfileCache{
		client: client,
		next:   next,
		prefix: DefaultPrefix,
		ttl:    ttl,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Named("kredis")
	}
	return c
}

func (c *ProfileCache) key(id string) string {
	return c.prefix + id
}

func (c *ProfileCache) Get(ctx context.Context, id string) (*profile.Profile, error) {
	raw, err := c.client.Get(ctx, c.key(id)).Bytes()
	switch {
	case err == nil:
		var p profile.Profile
		jerr := json.Unmarshal(raw, &p)
		if jerr == nil {
			return &p, nil
		}
		c.log.Warn("dropping unreadable cache entry", zap.String("principal_id", id), zap.Error(jerr))
		c.Invalidate(ctx, id)
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("profile cache read failed", zap.String("principal_id", id), zap.Error(err))
	}

	p, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.set(ctx, p)
	return p, nil
}

func (c *ProfileCache) Upsert(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	if p == nil {
		return nil, fmt.Errorf("kredis: upsert: nil profile")
	}
	stored, err := c.next.Upsert(ctx, p)
	if err != nil {
		c.Invalidate(ctx, p.ID)
		return nil, err
	}
	c.set(ctx, stored)
	return stored, nil
}

// Invalidate removes the cached record for id.
func (c *ProfileCache) Invalidate(ctx context.Context, id string) {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		c.log.Warn("profile cache invalidate failed", zap.String("principal_id", id), zap.Error(err))
	}
}

// Ping checks the Redis connection.
func (c *ProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *ProfileCache) set(ctx context.Context, p *profile.Profile) {
	raw, err := json.Marshal(p)
	if err != nil {
		c.log.Warn("profile cache encode failed", zap.String("principal_id", p.ID), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, c.key(p.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("profile cache write failed", zap.String("principal_id", p.ID), zap.Error(err))
	}
}
