package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
)

// All records live as JSON fields of one hash, keyed by requester ID.
// The layout predates this implementation and must stay readable by it.
const usersKey = "users"

type userRepository struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewUserRepository(client *redis.Client, log zerolog.Logger) repository.UserRepository {
	return &userRepository{
		client: client,
		log:    log.With().Str("component", "user_repository").Logger(),
	}
}

func (r *userRepository) Get(ctx context.Context, id int64) (*models.UserRecord, error) {
	raw, err := r.client.HGet(ctx, usersKey, strconv.FormatInt(id, 10)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	var rec models.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode user %d: %w", id, err)
	}
	return &rec, nil
}

func (r *userRepository) Put(ctx context.Context, rec *models.UserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user %d: %w", rec.ID, err)
	}
	if err := r.client.HSet(ctx, usersKey, strconv.FormatInt(rec.ID, 10), raw).Err(); err != nil {
		return fmt.Errorf("put user %d: %w", rec.ID, err)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context) ([]*models.UserRecord, error) {
	raw, err := r.client.HGetAll(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	records := make([]*models.UserRecord, 0, len(raw))
	for field, blob := range raw {
		var rec models.UserRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			r.log.Warn().Str("field", field).Err(err).Msg("skipping malformed user record")
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

func (r *userRepository) ListIDs(ctx context.Context) ([]int64, error) {
	fields, err := r.client.HKeys(ctx, usersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}

	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			r.log.Warn().Str("field", f).Msg("skipping non-numeric user key")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *userRepository) GetByThreadID(ctx context.Context, threadID int64) (*models.UserRecord, error) {
	records, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if id, ok := rec.Thread(); ok && id == threadID {
			return rec, nil
		}
	}
	return nil, repository.ErrNotFound
}
