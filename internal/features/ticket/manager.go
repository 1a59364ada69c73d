// Package ticket owns the ticket lifecycle: none → new → open → closed,
// with closed going back to new on the next inbound message. Status is
// persisted before any topic cosmetics so a crash mid-transition leaves
// the record correct and the topic title self-heals on the next change.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

// Topic title markers; the requester's full name follows.
const (
	markerNew    = "🆕 "
	markerOpen   = "🟢 "
	markerClosed = "⭕️ "
)

// ThreadCreateError wraps a failure to create the forum topic backing a
// ticket. Unwrap exposes the platform error for errors.Is checks.
type ThreadCreateError struct {
	Err error
}

func (e *ThreadCreateError) Error() string {
	return fmt.Sprintf("create forum topic: %v", e.Err)
}

func (e *ThreadCreateError) Unwrap() error { return e.Err }

// Manager drives ticket transitions. Callers serialize invocations per
// requester; Manager itself takes no locks.
type Manager struct {
	groupID     int64
	iconEmojiID string
	api         telegram.API
	users       repository.UserRepository
	texts       *texts.Bundle
	log         zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

func NewManager(groupID int64, iconEmojiID string, api telegram.API, users repository.UserRepository, bundle *texts.Bundle, log zerolog.Logger) *Manager {
	return &Manager{
		groupID:     groupID,
		iconEmojiID: iconEmojiID,
		api:         api,
		users:       users,
		texts:       bundle,
		log:         log.With().Str("component", "ticket").Logger(),
		now:         time.Now,
		sleep:       time.Sleep,
	}
}

// EnsureThread returns the requester's topic, creating it on first use.
// Idempotent: an existing thread ID is returned unchanged with no
// external call. A flood-wait from the platform is retried exactly once
// after the server-specified delay.
func (m *Manager) EnsureThread(ctx context.Context, rec *models.UserRecord) (int64, error) {
	if id, ok := rec.Thread(); ok {
		return id, nil
	}

	name := markerNew + rec.FullName
	threadID, err := m.api.CreateForumTopic(ctx, m.groupID, name, m.iconEmojiID)
	if err != nil {
		var rateLimited *telegram.RateLimitedError
		if errors.As(err, &rateLimited) {
			m.log.Warn().Int64("user_id", rec.ID).Dur("retry_after", rateLimited.RetryAfter).
				Msg("rate limited creating topic, retrying once")
			m.sleep(rateLimited.RetryAfter)
			threadID, err = m.api.CreateForumTopic(ctx, m.groupID, name, m.iconEmojiID)
		}
		if err != nil {
			return 0, &ThreadCreateError{Err: err}
		}
	}

	rec.ThreadID = &threadID
	rec.Status = models.StatusNew
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = models.NewStoredTime(m.now())
	}
	if err := m.users.Put(ctx, rec); err != nil {
		return 0, err
	}

	m.log.Info().Int64("user_id", rec.ID).Int64("thread_id", threadID).Msg("created topic")
	return threadID, nil
}

// Open moves the ticket to open and marks the topic active. The status
// write commits first; rename and reopen failures never roll it back.
func (m *Manager) Open(ctx context.Context, rec *models.UserRecord) error {
	return m.transition(ctx, rec, models.StatusOpen, markerOpen, m.api.ReopenForumTopic)
}

// Close moves the ticket to closed and closes the topic.
func (m *Manager) Close(ctx context.Context, rec *models.UserRecord) error {
	return m.transition(ctx, rec, models.StatusClosed, markerClosed, m.api.CloseForumTopic)
}

// MarkNew is used when an inbound message lands on a closed or never
// opened ticket: status goes to new and the topic is reopened if the
// platform had closed it.
func (m *Manager) MarkNew(ctx context.Context, rec *models.UserRecord) error {
	return m.transition(ctx, rec, models.StatusNew, markerNew, m.api.ReopenForumTopic)
}

func (m *Manager) transition(ctx context.Context, rec *models.UserRecord, status models.Status, marker string, toggle func(context.Context, int64, int64) error) error {
	threadID, ok := rec.Thread()
	if !ok {
		return fmt.Errorf("user %d has no thread for %q transition", rec.ID, status)
	}

	old := rec.Status
	rec.Status = status
	if err := m.users.Put(ctx, rec); err != nil {
		rec.Status = old
		return err
	}
	m.log.Info().Int64("user_id", rec.ID).Str("from", string(old)).Str("to", string(status)).
		Msg("ticket status changed")

	if err := m.api.EditForumTopic(ctx, m.groupID, threadID, marker+rec.FullName); err != nil && !m.cosmetic(err) {
		m.log.Error().Int64("user_id", rec.ID).Err(err).Msg("rename topic failed")
	}
	if err := toggle(ctx, m.groupID, threadID); err != nil && !m.cosmetic(err) {
		m.log.Error().Int64("user_id", rec.ID).Err(err).Msg("toggle topic failed")
	}
	return nil
}

// cosmetic reports whether a topic rename/close/reopen error carries no
// information: the topic is already in the requested shape.
func (m *Manager) cosmetic(err error) bool {
	return errors.Is(err, telegram.ErrNotModified) || errors.Is(err, telegram.ErrTopicClosed)
}

// AnnounceUser posts the greeting with the requester's profile link into
// a freshly created topic and pins it.
func (m *Manager) AnnounceUser(ctx context.Context, rec *models.UserRecord) error {
	threadID, ok := rec.Thread()
	if !ok {
		return fmt.Errorf("user %d has no thread to announce in", rec.ID)
	}

	t := m.texts.For(rec.LanguageCode)
	link := fmt.Sprintf(`<a href="%s">%s</a>`, rec.ProfileURL(), rec.FullName)
	msgID, err := m.api.SendMessage(ctx, telegram.SendRequest{
		ChatID:    m.groupID,
		ThreadID:  threadID,
		Text:      t.Getf("user_started_bot", link),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("announce user %d: %w", rec.ID, err)
	}
	if err := m.api.PinChatMessage(ctx, m.groupID, msgID); err != nil {
		m.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("pin greeting failed")
	}
	return nil
}
