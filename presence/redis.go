package presence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Ledger shared by every server instance. Rows expire on their own
// after retention; freshness is still computed from the stored timestamp.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "presence:"}
}

func (r *Redis) key(kind Kind, key string) string {
	return r.prefix + string(kind) + ":" + key
}

func (r *Redis) Set(ctx context.Context, kind Kind, key string, at time.Time) error {
	return r.client.Set(ctx, r.key(kind, key), at.UnixMilli(), retention(kind)).Err()
}

func (r *Redis) Delete(ctx context.Context, kind Kind, key string) error {
	return r.client.Del(ctx, r.key(kind, key)).Err()
}

func (r *Redis) Get(ctx context.Context, kind Kind, key string) (time.Time, bool, error) {
	ms, err := r.client.Get(ctx, r.key(kind, key)).Int64()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
