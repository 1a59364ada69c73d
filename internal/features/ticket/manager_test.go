package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

type memRepo struct {
	mu    sync.Mutex
	blobs map[int64][]byte
	puts  int
}

func newMemRepo() *memRepo {
	return &memRepo{blobs: make(map[int64][]byte)}
}

func (r *memRepo) Get(_ context.Context, id int64) (*models.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.blobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	var rec models.UserRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *memRepo) Put(_ context.Context, rec *models.UserRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	r.blobs[rec.ID] = raw
	r.puts++
	return nil
}

func (r *memRepo) List(ctx context.Context) ([]*models.UserRecord, error) {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.blobs))
	for id := range r.blobs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	records := make([]*models.UserRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *memRepo) ListIDs(_ context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.blobs))
	for id := range r.blobs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *memRepo) GetByThreadID(ctx context.Context, threadID int64) (*models.UserRecord, error) {
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

type fakeAPI struct {
	mu sync.Mutex

	nextThreadID int64
	createErrs   []error
	createCalls  int

	editErr   error
	renames   []string
	closed    []int64
	reopened  []int64
	closeErr  error
	reopenErr error

	nextMsgID int64
	sent      []telegram.SendRequest
	pinned    []int64
	deleted   []int64
	copies    []telegram.CopyRequest
	copyErrs  []error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextThreadID: 7, nextMsgID: 1000}
}

func (f *fakeAPI) CreateForumTopic(_ context.Context, _ int64, _ string, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	id := f.nextThreadID
	f.nextThreadID++
	return id, nil
}

func (f *fakeAPI) EditForumTopic(_ context.Context, _ int64, _ int64, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.renames = append(f.renames, name)
	return nil
}

func (f *fakeAPI) CloseForumTopic(_ context.Context, _ int64, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, threadID)
	return nil
}

func (f *fakeAPI) ReopenForumTopic(_ context.Context, _ int64, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reopenErr != nil {
		return f.reopenErr
	}
	f.reopened = append(f.reopened, threadID)
	return nil
}

func (f *fakeAPI) CopyMessage(_ context.Context, req telegram.CopyRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.copyErrs) > 0 {
		err := f.copyErrs[0]
		f.copyErrs = f.copyErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	f.copies = append(f.copies, req)
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, req telegram.SendRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	f.nextMsgID++
	return f.nextMsgID, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeAPI) PinChatMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, messageID)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *fakeAPI, *memRepo) {
	t.Helper()
	api := newFakeAPI()
	repo := newMemRepo()
	m := NewManager(-1001234567890, "", api, repo, texts.NewBundle(), zerolog.Nop())
	m.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	m.sleep = func(time.Duration) {}
	return m, api, repo
}

func seedUser(t *testing.T, repo *memRepo, rec *models.UserRecord) {
	t.Helper()
	require.NoError(t, repo.Put(context.Background(), rec))
}

func TestEnsureThreadCreatesAndPersists(t *testing.T) {
	m, api, repo := newTestManager(t)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe", NotificationsEnabled: true}
	seedUser(t, repo, rec)

	threadID, err := m.EnsureThread(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(7), threadID)
	assert.Equal(t, 1, api.createCalls)

	stored, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, stored.Status)
	require.NotNil(t, stored.ThreadID)
	assert.Equal(t, int64(7), *stored.ThreadID)
	assert.False(t, stored.CreatedAt.IsZero())
}

func TestEnsureThreadIdempotent(t *testing.T) {
	m, api, repo := newTestManager(t)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	first, err := m.EnsureThread(context.Background(), rec)
	require.NoError(t, err)
	second, err := m.EnsureThread(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, api.createCalls, "second call must not hit the platform")
}

func TestEnsureThreadRetriesOnceOnRateLimit(t *testing.T) {
	m, api, repo := newTestManager(t)
	api.createErrs = []error{&telegram.RateLimitedError{RetryAfter: 2 * time.Second}}

	var slept time.Duration
	m.sleep = func(d time.Duration) { slept = d }

	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	threadID, err := m.EnsureThread(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, int64(7), threadID)
	assert.Equal(t, 2, api.createCalls)
	assert.Equal(t, 2*time.Second, slept)
}

func TestEnsureThreadFailsAfterSecondRateLimit(t *testing.T) {
	m, api, repo := newTestManager(t)
	api.createErrs = []error{
		&telegram.RateLimitedError{RetryAfter: time.Second},
		&telegram.RateLimitedError{RetryAfter: time.Second},
	}

	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	_, err := m.EnsureThread(context.Background(), rec)
	var createErr *ThreadCreateError
	require.ErrorAs(t, err, &createErr)
	assert.Equal(t, 2, api.createCalls)
}

func TestEnsureThreadPropagatesPermissionError(t *testing.T) {
	m, api, repo := newTestManager(t)
	api.createErrs = []error{telegram.ErrNotEnoughRights}

	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	_, err := m.EnsureThread(context.Background(), rec)
	assert.ErrorIs(t, err, telegram.ErrNotEnoughRights)
	assert.Equal(t, 1, api.createCalls, "terminal errors are not retried")
}

func TestOpenCommitsStatusBeforeCosmetics(t *testing.T) {
	m, api, repo := newTestManager(t)
	threadID := int64(7)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe", ThreadID: &threadID, Status: models.StatusNew}
	seedUser(t, repo, rec)

	api.editErr = errors.New("boom")
	api.reopenErr = errors.New("boom")

	require.NoError(t, m.Open(context.Background(), rec))

	stored, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, stored.Status)
}

func TestCloseSwallowsNotModified(t *testing.T) {
	m, api, repo := newTestManager(t)
	threadID := int64(7)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe", ThreadID: &threadID, Status: models.StatusOpen}
	seedUser(t, repo, rec)

	api.editErr = telegram.ErrNotModified
	api.closeErr = telegram.ErrTopicClosed

	require.NoError(t, m.Close(context.Background(), rec))

	stored, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, stored.Status)
}

func TestMarkNewReopensAndRenames(t *testing.T) {
	m, api, repo := newTestManager(t)
	threadID := int64(7)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe", ThreadID: &threadID, Status: models.StatusClosed}
	seedUser(t, repo, rec)

	require.NoError(t, m.MarkNew(context.Background(), rec))

	assert.Equal(t, models.StatusNew, rec.Status)
	require.Len(t, api.renames, 1)
	assert.Equal(t, "🆕 Jamie Doe", api.renames[0])
	assert.Equal(t, []int64{7}, api.reopened)
}

func TestAnnounceUserPinsGreeting(t *testing.T) {
	m, api, repo := newTestManager(t)
	threadID := int64(7)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe", Username: "jamie", ThreadID: &threadID, Status: models.StatusNew}
	seedUser(t, repo, rec)

	require.NoError(t, m.AnnounceUser(context.Background(), rec))

	require.Len(t, api.sent, 1)
	assert.Equal(t, threadID, api.sent[0].ThreadID)
	assert.Equal(t, "HTML", api.sent[0].ParseMode)
	assert.Contains(t, api.sent[0].Text, "https://t.me/jamie")
	assert.Contains(t, api.sent[0].Text, "Jamie Doe")
	assert.Equal(t, []int64{1001}, api.pinned)
}

func TestAnnounceUserWithoutThreadFails(t *testing.T) {
	m, _, repo := newTestManager(t)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	assert.Error(t, m.AnnounceUser(context.Background(), rec))
}

func TestTransitionWithoutThreadFails(t *testing.T) {
	m, _, repo := newTestManager(t)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	assert.Error(t, m.Open(context.Background(), rec))
}

func TestThreadInvariantAfterTransitions(t *testing.T) {
	m, _, repo := newTestManager(t)
	rec := &models.UserRecord{ID: 42, FullName: "Jamie Doe"}
	seedUser(t, repo, rec)

	_, err := m.EnsureThread(context.Background(), rec)
	require.NoError(t, err)
	require.NoError(t, m.Open(context.Background(), rec))
	require.NoError(t, m.Close(context.Background(), rec))
	require.NoError(t, m.MarkNew(context.Background(), rec))

	records, err := repo.List(context.Background())
	require.NoError(t, err)
	for _, stored := range records {
		if stored.Status != models.StatusNone {
			assert.NotNil(t, stored.ThreadID, "thread_id must be set whenever status != none")
		}
	}
}
