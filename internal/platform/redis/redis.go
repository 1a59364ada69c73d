// Package redis opens the store that holds everything the bot persists:
// the user record hash, the per-requester message mappings and the
// notification blob.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client embeds the go-redis client; repositories reach it directly.
type Client struct {
	*redis.Client
}

// Open connects and verifies the store is reachable before any handler
// starts depending on it.
func Open(ctx context.Context, addr, password string, db int) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &Client{Client: client}, nil
}
