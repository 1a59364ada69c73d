// Package relay copies inbound units across the bridge between a
// requester's private chat and their topic in the staff group, keeping
// reply linkage alive through the message mapping.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"support-relay-bot/internal/common/syncx"
	"support-relay-bot/internal/features/mapping"
	"support-relay-bot/internal/features/notification"
	"support-relay-bot/internal/features/ticket"
	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

// Fixed design constants, not configurable per call.
const (
	confirmDeleteDelay = 5 * time.Second
	warnDeleteDelay    = 10 * time.Second
)

// RelayFailedError reports a copy that failed even after the one allowed
// thread recreation.
type RelayFailedError struct {
	Err error
}

func (e *RelayFailedError) Error() string {
	return fmt.Sprintf("relay failed: %v", e.Err)
}

func (e *RelayFailedError) Unwrap() error { return e.Err }

type Relay struct {
	groupID  int64
	api      telegram.API
	users    repository.UserRepository
	mappings mapping.Store
	tickets  *ticket.Manager
	notifs   *notification.Manager
	texts    *texts.Bundle
	locks    *syncx.KeyedMutex
	log      zerolog.Logger

	now func() time.Time
	// deleteAfter removes a transient reply once its delay elapses.
	// Replaced in tests; the default detaches a goroutine.
	deleteAfter func(chatID, messageID int64, delay time.Duration)
}

func New(groupID int64, api telegram.API, users repository.UserRepository, mappings mapping.Store, tickets *ticket.Manager, notifs *notification.Manager, bundle *texts.Bundle, locks *syncx.KeyedMutex, log zerolog.Logger) *Relay {
	r := &Relay{
		groupID:  groupID,
		api:      api,
		users:    users,
		mappings: mappings,
		tickets:  tickets,
		notifs:   notifs,
		texts:    bundle,
		locks:    locks,
		log:      log.With().Str("component", "relay").Logger(),
		now:      time.Now,
	}
	r.deleteAfter = func(chatID, messageID int64, delay time.Duration) {
		go func() {
			time.Sleep(delay)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.api.DeleteMessage(ctx, chatID, messageID); err != nil {
				r.log.Debug().Int64("chat_id", chatID).Err(err).Msg("delete transient reply failed")
			}
		}()
	}
	return r
}

// ToStaff copies a requester's unit into their topic. Banned requesters
// are dropped silently; a closed or never-opened ticket transitions back
// to new first. The requester gets a transient confirmation carrying
// either the queue position (ticket new) or the active-ticket variant.
func (r *Relay) ToStaff(ctx context.Context, rec *models.UserRecord, unit Unit) error {
	unlock := r.locks.Lock(rec.ID)
	defer unlock()

	if rec.IsBanned {
		return nil
	}

	threadID, err := r.tickets.EnsureThread(ctx, rec)
	if err != nil {
		return err
	}

	if rec.Status == models.StatusClosed || rec.Status == models.StatusNone {
		if err := r.tickets.MarkNew(ctx, rec); err != nil {
			return err
		}
		if _, err := r.notifs.ShowImportantWithConfirmation(ctx, rec); err != nil {
			r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("show notifications failed")
		}
	}

	m := r.mapping(ctx, rec.ID)
	replyToID := r.resolveReply(ctx, unit, m, r.groupID, threadID, rec.LanguageCode)

	firstCopyID, err := r.copyAll(ctx, unit, r.groupID, threadID, replyToID)
	if errors.Is(err, telegram.ErrThreadNotFound) {
		// The topic was deleted out from under us: recreate once and
		// retry the copy exactly once.
		rec.ThreadID = nil
		threadID, err = r.tickets.EnsureThread(ctx, rec)
		if err != nil {
			return err
		}
		firstCopyID, err = r.copyAll(ctx, unit, r.groupID, threadID, replyToID)
	}
	if err != nil {
		return &RelayFailedError{Err: err}
	}

	m.Set(unit.First().ID, firstCopyID)
	if err := r.mappings.Put(ctx, rec.ID, m); err != nil {
		r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("store mapping failed")
	}

	ts := models.NewStoredTime(r.now())
	rec.LastMessageAt = &ts
	if err := r.users.Put(ctx, rec); err != nil {
		return err
	}

	t := r.texts.For(rec.LanguageCode)
	var confirmation string
	if rec.Status == models.StatusOpen {
		confirmation = t.Get("message_sent_topic_open")
	} else {
		position, err := r.tickets.Position(ctx, rec.ID)
		if err != nil {
			r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("queue position failed")
		}
		confirmation = t.Getf("message_sent", position)
	}
	r.transient(ctx, rec.ID, 0, unit.First().ID, confirmation, confirmDeleteDelay)

	return nil
}

// ToUser copies a staff unit from a topic to its requester. Closed
// tickets get the transient warning instead; silent mode and bans drop
// the unit without error. A blocked recipient surfaces as
// telegram.ErrBlocked after the staff-side notice is posted.
func (r *Relay) ToUser(ctx context.Context, unit Unit) error {
	rec, err := r.users.GetByThreadID(ctx, unit.ThreadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	unlock := r.locks.Lock(rec.ID)
	defer unlock()

	t := r.texts.For(rec.LanguageCode)

	if rec.Status == models.StatusClosed {
		r.transient(ctx, r.groupID, unit.ThreadID, unit.First().ID, t.Get("topic_closed_warning"), warnDeleteDelay)
		return nil
	}
	if rec.SilentMode || rec.IsBanned {
		return nil
	}

	m := r.mapping(ctx, rec.ID)
	replyToID := r.resolveReply(ctx, unit, m, rec.ID, 0, rec.LanguageCode)

	firstCopyID, err := r.copyAll(ctx, unit, rec.ID, 0, replyToID)
	if err != nil {
		if errors.Is(err, telegram.ErrBlocked) {
			r.transient(ctx, r.groupID, unit.ThreadID, unit.First().ID, t.Get("blocked_by_user"), confirmDeleteDelay)
			return fmt.Errorf("relay to user %d: %w", rec.ID, err)
		}
		r.transient(ctx, r.groupID, unit.ThreadID, unit.First().ID, t.Get("message_not_sent"), confirmDeleteDelay)
		return &RelayFailedError{Err: err}
	}

	if unit.IsAlbum() {
		r.sendCaptionDigest(ctx, rec, unit)
	}

	m.Set(unit.First().ID, firstCopyID)
	if err := r.mappings.Put(ctx, rec.ID, m); err != nil {
		r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("store mapping failed")
	}

	r.transient(ctx, r.groupID, unit.ThreadID, unit.First().ID, t.Get("message_sent_to_user"), confirmDeleteDelay)
	return nil
}

// NotifyEdited tells a requester that edits do not propagate.
func (r *Relay) NotifyEdited(ctx context.Context, chatID, messageID int64, languageCode string) {
	t := r.texts.For(languageCode)
	r.transient(ctx, chatID, 0, messageID, t.Get("message_edited"), confirmDeleteDelay)
}

func (r *Relay) copyAll(ctx context.Context, unit Unit, toChatID, threadID, replyToID int64) (int64, error) {
	var firstCopyID int64
	for i, item := range unit.Items {
		req := telegram.CopyRequest{
			FromChatID: unit.ChatID,
			ToChatID:   toChatID,
			MessageID:  item.ID,
			ThreadID:   threadID,
		}
		if i == 0 {
			req.ReplyToID = replyToID
		}
		copyID, err := r.api.CopyMessage(ctx, req)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			firstCopyID = copyID
		}
	}
	return firstCopyID, nil
}

// resolveReply maps the replied-to message onto the destination side.
// When no mapping survives it posts a quoted summary as a separate
// preceding message; that path never fails the relay.
func (r *Relay) resolveReply(ctx context.Context, unit Unit, m mapping.Map, toChatID, threadID int64, languageCode string) int64 {
	if unit.ReplyTo == nil {
		return 0
	}
	if mapped, ok := m.Resolve(unit.ReplyTo.ID); ok {
		return mapped
	}

	t := r.texts.For(languageCode)
	summary := unit.ReplyTo.Summary
	if summary == "" {
		summary = t.Get("media_placeholder")
	}
	_, err := r.api.SendMessage(ctx, telegram.SendRequest{
		ChatID:   toChatID,
		ThreadID: threadID,
		Text:     t.Getf("reply_header", summary),
	})
	if err != nil {
		r.log.Warn().Int64("chat_id", toChatID).Err(err).Msg("send quoted reply header failed")
	}
	return 0
}

func (r *Relay) sendCaptionDigest(ctx context.Context, rec *models.UserRecord, unit Unit) {
	hasCaption := false
	for _, item := range unit.Items {
		if item.Caption != "" {
			hasCaption = true
			break
		}
	}
	if !hasCaption {
		return
	}

	t := r.texts.For(rec.LanguageCode)
	var lines []string
	for i, item := range unit.Items {
		if item.Caption != "" {
			lines = append(lines, t.Getf("caption_item", i+1, item.Caption))
		} else {
			lines = append(lines, t.Getf("caption_item_empty", i+1))
		}
	}
	_, err := r.api.SendMessage(ctx, telegram.SendRequest{
		ChatID: rec.ID,
		Text:   t.Getf("captions_title", strings.Join(lines, "\n\n")),
	})
	if err != nil {
		r.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("send caption digest failed")
	}
}

func (r *Relay) mapping(ctx context.Context, requesterID int64) mapping.Map {
	m, err := r.mappings.Get(ctx, requesterID)
	if err != nil {
		r.log.Warn().Int64("user_id", requesterID).Err(err).Msg("load mapping failed")
		return mapping.Map{}
	}
	return m
}

// transient sends a reply and schedules its deletion.
func (r *Relay) transient(ctx context.Context, chatID, threadID, replyToID int64, text string, delay time.Duration) {
	msgID, err := r.api.SendMessage(ctx, telegram.SendRequest{
		ChatID:    chatID,
		ThreadID:  threadID,
		ReplyToID: replyToID,
		Text:      text,
	})
	if err != nil {
		r.log.Debug().Int64("chat_id", chatID).Err(err).Msg("send transient reply failed")
		return
	}
	r.deleteAfter(chatID, msgID, delay)
}
