package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Options struct {
	Type string
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the backend named by opts.Type. The returned close func is always safe to call.
func Open(ctx context.Context, opts Options) (Store, func() error, error) {
	noop := func() error { return nil }

	switch opts.Type {
	case "memory":
		return NewMemoryStore(), noop, nil

	case "file":
		fs, err := NewFileStore(opts.Path)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("couldn't reach redis at %s: %w", opts.RedisAddr, err)
		}
		return NewRedisStore(client, opts.RedisPrefix), client.Close, nil
	}

	return nil, noop, fmt.Errorf("%w: %q", ErrUnknownType, opts.Type)
}
