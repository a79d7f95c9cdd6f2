package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/opsdeck/opsdeck/pkg/observability"
)

// Invalidator purges cached decisions for one organization. Called by
// every administration mutation before it returns.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID string) error
}

// LocalInvalidator purges the in-process cache only. Sufficient for
// single-instance deployments and tests.
type LocalInvalidator struct {
	cache *DecisionCache
}

// NewLocalInvalidator creates an invalidator over the given cache.
func NewLocalInvalidator(cache *DecisionCache) *LocalInvalidator {
	return &LocalInvalidator{cache: cache}
}

// Invalidate purges the organization's cached decisions.
func (l *LocalInvalidator) Invalidate(_ context.Context, orgID string) error {
	l.cache.Invalidate(orgID)
	return nil
}

// RedisInvalidator purges the local cache and broadcasts the
// organization ID so every other server instance purges its own. The
// real deployment runs multiple concurrent instances; an in-process
// purge alone would leave the siblings serving pre-mutation grants.
type RedisInvalidator struct {
	client  *redis.Client
	channel string
	cache   *DecisionCache
	logger  *observability.Logger
}

// NewRedisInvalidator creates a redis-backed invalidator. The caller
// owns the client's lifecycle.
func NewRedisInvalidator(client *redis.Client, channel string, cache *DecisionCache, logger *observability.Logger) *RedisInvalidator {
	if channel == "" {
		channel = "authz:invalidate"
	}
	return &RedisInvalidator{
		client:  client,
		channel: channel,
		cache:   cache,
		logger:  logger,
	}
}

// Invalidate purges locally first, then publishes. The local purge is
// synchronous with the mutation so this instance observes
// read-after-write immediately even if the publish fails.
func (r *RedisInvalidator) Invalidate(ctx context.Context, orgID string) error {
	r.cache.Invalidate(orgID)

	if err := r.client.Publish(ctx, r.channel, orgID).Err(); err != nil {
		return fmt.Errorf("failed to publish cache invalidation: %w", err)
	}
	return nil
}

// Listen consumes invalidation broadcasts until ctx is done. Run it in
// its own goroutine per instance.
func (r *RedisInvalidator) Listen(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		sub := r.client.Subscribe(ctx, r.channel)
		r.consume(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
			// Resubscribe after a dropped connection. The cache is
			// purged wholesale first: invalidations may have been
			// missed while disconnected.
			r.cache.Purge()
			r.logger.Warn("invalidation subscription lost, cache purged, resubscribing")
		}
	}
}

func (r *RedisInvalidator) consume(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.cache.Invalidate(msg.Payload)
			r.logger.WithField("organization_id", msg.Payload).Debug("decision cache invalidated")
		}
	}
}
