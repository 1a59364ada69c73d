package repository

import (
	"context"
	"errors"

	"support-relay-bot/internal/features/user/models"
)

// ErrNotFound is returned when no record exists for the requester.
var ErrNotFound = errors.New("user record not found")

// UserRepository is the durable per-requester record store.
type UserRepository interface {
	Get(ctx context.Context, id int64) (*models.UserRecord, error)
	Put(ctx context.Context, rec *models.UserRecord) error
	// List returns every readable record. Individually corrupt blobs are
	// skipped with a log entry, never failing the whole scan.
	List(ctx context.Context) ([]*models.UserRecord, error)
	ListIDs(ctx context.Context) ([]int64, error)
	GetByThreadID(ctx context.Context, threadID int64) (*models.UserRecord, error)
}
