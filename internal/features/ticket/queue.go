package ticket

import (
	"context"
	"sort"

	"support-relay-bot/internal/features/user/models"
)

// Position returns the requester's 1-based FIFO rank among tickets in
// the new state, ordered by creation time with the requester ID breaking
// ties, or 0 when the requester is not queued.
//
// This is a full scan over all records per call. Fine at support-ticket
// volume; a sorted-set index is the upgrade path if it ever is not.
func (m *Manager) Position(ctx context.Context, requesterID int64) (int, error) {
	records, err := m.users.List(ctx)
	if err != nil {
		return 0, err
	}

	type queued struct {
		id        int64
		createdAt models.StoredTime
	}
	queue := make([]queued, 0, len(records))
	for _, rec := range records {
		if rec.Status != models.StatusNew {
			continue
		}
		if rec.CreatedAt.IsZero() {
			m.log.Debug().Int64("user_id", rec.ID).Msg("queued record without creation time, skipping")
			continue
		}
		queue = append(queue, queued{id: rec.ID, createdAt: rec.CreatedAt})
	}

	sort.Slice(queue, func(i, j int) bool {
		if queue[i].createdAt.Equal(queue[j].createdAt.Time) {
			return queue[i].id < queue[j].id
		}
		return queue[i].createdAt.Before(queue[j].createdAt.Time)
	})

	for pos, q := range queue {
		if q.id == requesterID {
			return pos + 1, nil
		}
	}
	return 0, nil
}
