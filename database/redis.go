package database

import (
	"context"
	"fmt"
	"time"

	"support-chat/config"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var Redis *redis.Client

func RedisConnect(ctx context.Context) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf(
			"%s:%s",
			config.String("REDIS_HOST", "127.0.0.1"),
			config.String("REDIS_PORT", "6379"),
		),
		Password: config.Config("REDIS_PASSWORD"),
		DB:       config.Int("REDIS_DB", 0),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	log.Info().Msg("connection opened to Redis")
	Redis = client
	return client, nil
}
