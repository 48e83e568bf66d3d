package setup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aadithya-v/sessiondedup/live"
	"github.com/aadithya-v/sessiondedup/store"
)

// OpenStore connects the session backend named by cfg.Driver.
func OpenStore(ctx context.Context, cfg Env) (store.SessionStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		s, err := store.NewSQLite(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "mysql":
		s, err := store.NewMySQLFromDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := store.NewPostgresFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		client, err := redisClient(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewRedisStore(client, ""), nil
	case "memory":
		return store.NewMemorySessionStore(), nil
	default:
		return nil, fmt.Errorf("setup: unknown session driver %q", cfg.Driver)
	}
}

// OpenRedisNotifier connects a live notifier to cfg.RedisAddr. It returns
// nil when no address is configured.
func OpenRedisNotifier(ctx context.Context, cfg Env) (*live.RedisNotifier, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}
	client, err := redisClient(ctx, "redis://"+cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	return live.NewRedisNotifier(client, ""), nil
}

func redisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}
	return client, nil
}
