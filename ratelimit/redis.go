package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared across instances. The window is
// Every*Burst, so the long-run rate matches the in-memory bucket.
type Redis struct {
	client *redis.Client
	rules  map[Action]Rule
}

func NewRedis(client *redis.Client, rules map[Action]Rule) *Redis {
	return &Redis{client: client, rules: rules}
}

func (r *Redis) CheckAndConsume(ctx context.Context, partyKey string, action Action) (Decision, error) {
	rule, ok := r.rules[action]
	if !ok {
		return Decision{Allowed: true}, nil
	}
	window := rule.Every * time.Duration(rule.Burst)
	key := "ratelimit:" + string(action) + ":" + partyKey

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, key, window).Err(); err != nil {
			return Decision{}, err
		}
	}
	if count <= int64(rule.Burst) {
		return Decision{Allowed: true}, nil
	}

	ttl, err := r.client.PTTL(ctx, key).Result()
	if err != nil {
		return Decision{}, err
	}
	if ttl <= 0 {
		// counter lost its expiry; restore it
		r.client.PExpire(ctx, key, window)
		ttl = window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}
