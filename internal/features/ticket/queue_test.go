package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-relay-bot/internal/features/user/models"
)

func queuedUser(id int64, status models.Status, createdAt time.Time) *models.UserRecord {
	threadID := id * 10
	return &models.UserRecord{
		ID:        id,
		FullName:  "user",
		ThreadID:  &threadID,
		Status:    status,
		CreatedAt: models.NewStoredTime(createdAt),
	}
}

func TestPositionFIFOOrder(t *testing.T) {
	m, _, repo := newTestManager(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedUser(t, repo, queuedUser(1, models.StatusNew, base.Add(time.Minute)))
	seedUser(t, repo, queuedUser(2, models.StatusNew, base))
	seedUser(t, repo, queuedUser(3, models.StatusOpen, base.Add(-time.Hour)))

	pos, err := m.Position(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = m.Position(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestPositionMonotonicInCreationOrder(t *testing.T) {
	m, _, repo := newTestManager(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedUser(t, repo, queuedUser(10, models.StatusNew, base))
	seedUser(t, repo, queuedUser(20, models.StatusNew, base.Add(time.Second)))

	earlier, err := m.Position(context.Background(), 10)
	require.NoError(t, err)
	later, err := m.Position(context.Background(), 20)
	require.NoError(t, err)
	assert.Less(t, earlier, later)
}

func TestPositionTieBreaksOnRequesterID(t *testing.T) {
	m, _, repo := newTestManager(t)
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	seedUser(t, repo, queuedUser(9, models.StatusNew, base))
	seedUser(t, repo, queuedUser(5, models.StatusNew, base))

	pos, err := m.Position(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = m.Position(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestPositionZeroWhenNotQueued(t *testing.T) {
	m, _, repo := newTestManager(t)
	seedUser(t, repo, queuedUser(1, models.StatusOpen, time.Now()))

	pos, err := m.Position(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)

	pos, err = m.Position(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}

func TestPositionSkipsRecordsWithoutCreationTime(t *testing.T) {
	m, _, repo := newTestManager(t)
	threadID := int64(70)
	seedUser(t, repo, &models.UserRecord{ID: 1, FullName: "broken", ThreadID: &threadID, Status: models.StatusNew})
	seedUser(t, repo, queuedUser(2, models.StatusNew, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))

	pos, err := m.Position(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = m.Position(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
}
