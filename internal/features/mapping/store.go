package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists per-requester message maps.
type Store interface {
	// Get returns the requester's map. An absent or expired map comes
	// back empty, not as an error.
	Get(ctx context.Context, requesterID int64) (Map, error)
	// Put overwrites the map and refreshes its TTL.
	Put(ctx context.Context, requesterID int64, m Map) error
}

// kvClient is the narrow slice of the Redis client the store needs.
type kvClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type redisStore struct {
	client kvClient
}

func NewStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func key(requesterID int64) string {
	return fmt.Sprintf("message_mapping:%d", requesterID)
}

func (s *redisStore) Get(ctx context.Context, requesterID int64) (Map, error) {
	raw, err := s.client.Get(ctx, key(requesterID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Map{}, nil
		}
		return nil, fmt.Errorf("get mapping %d: %w", requesterID, err)
	}

	var m Map
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode mapping %d: %w", requesterID, err)
	}
	return m, nil
}

func (s *redisStore) Put(ctx context.Context, requesterID int64, m Map) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode mapping %d: %w", requesterID, err)
	}
	if err := s.client.Set(ctx, key(requesterID), raw, TTLSeconds*time.Second).Err(); err != nil {
		return fmt.Errorf("put mapping %d: %w", requesterID, err)
	}
	return nil
}
