// Package bot runs the long-polling update loop and routes messages into
// the relay: private chats flow toward the staff group, topic messages
// flow back to their requester. Command and menu handling lives outside
// this dispatcher.
package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"support-relay-bot/internal/common/syncx"
	"support-relay-bot/internal/features/relay"
	"support-relay-bot/internal/features/ticket"
	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
)

const pollTimeoutSeconds = 25

// UpdateSource is the long-poll side of the platform client.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout int) ([]telegram.Update, error)
}

type Dispatcher struct {
	groupID int64
	adminID int64
	source  UpdateSource
	api     telegram.API
	relay   *relay.Relay
	users   repository.UserRepository
	tickets *ticket.Manager
	locks   *syncx.KeyedMutex
	log     zerolog.Logger

	albums *albumBuffer
	now    func() time.Time
}

func NewDispatcher(groupID, adminID int64, source UpdateSource, api telegram.API, rel *relay.Relay, users repository.UserRepository, tickets *ticket.Manager, locks *syncx.KeyedMutex, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		groupID: groupID,
		adminID: adminID,
		source:  source,
		api:     api,
		relay:   rel,
		users:   users,
		tickets: tickets,
		locks:   locks,
		log:     log.With().Str("component", "dispatcher").Logger(),
		now:     time.Now,
	}
	d.albums = newAlbumBuffer(d.flushAlbum)
	return d
}

// Run polls until ctx is cancelled. Each update is handled on its own
// goroutine; per-requester ordering comes from the keyed mutex inside
// the relay, not from the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	var offset int64
	for {
		updates, err := d.source.GetUpdates(ctx, offset, pollTimeoutSeconds)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.log.Error().Err(err).Msg("getUpdates failed")
			time.Sleep(3 * time.Second)
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			update := u
			go d.handle(ctx, update)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, u telegram.Update) {
	switch {
	case u.Message != nil:
		d.handleMessage(ctx, u.Message)
	case u.EditedMessage != nil && u.EditedMessage.Chat.Type == "private":
		lang := ""
		if u.EditedMessage.From != nil {
			lang = u.EditedMessage.From.LanguageCode
		}
		d.relay.NotifyEdited(ctx, u.EditedMessage.Chat.ID, u.EditedMessage.MessageID, lang)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	switch {
	case msg.Chat.Type == "private":
		d.handlePrivate(ctx, msg)
	case msg.Chat.ID == d.groupID && msg.ThreadID != 0:
		d.handleGroup(ctx, msg)
	}
}

func (d *Dispatcher) handlePrivate(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}

	rec, err := d.upsertUser(ctx, msg.From)
	if err != nil {
		d.log.Error().Int64("user_id", msg.From.ID).Err(err).Msg("upsert user failed")
		return
	}

	if msg.MediaGroupID != "" {
		d.albums.add(msg)
		return
	}

	unit := relay.Unit{
		ChatID:  msg.Chat.ID,
		Items:   []relay.Item{{ID: msg.MessageID, Text: msg.Text, Caption: msg.Caption}},
		ReplyTo: replyRef(msg),
	}
	if err := d.relay.ToStaff(ctx, rec, unit); err != nil {
		d.log.Error().Int64("user_id", rec.ID).Err(err).Msg("relay to staff failed")
		d.reportConfigError(ctx, err)
	}
}

// reportConfigError tells the operator about errors no retry can fix:
// the bot lacks topic rights or the group is not a forum.
func (d *Dispatcher) reportConfigError(ctx context.Context, err error) {
	if d.adminID == 0 {
		return
	}
	if !errors.Is(err, telegram.ErrNotEnoughRights) && !errors.Is(err, telegram.ErrNotAForum) {
		return
	}
	_, sendErr := d.api.SendMessage(ctx, telegram.SendRequest{
		ChatID: d.adminID,
		Text:   fmt.Sprintf("Bot misconfigured, tickets cannot be created: %v", err),
	})
	if sendErr != nil {
		d.log.Error().Err(sendErr).Msg("notify admin failed")
	}
}

func (d *Dispatcher) handleGroup(ctx context.Context, msg *telegram.Message) {
	if msg.ForumTopicEvent != nil {
		d.announce(ctx, msg.ThreadID)
		return
	}
	if isServiceMessage(msg) {
		// Service messages cannot be copied to the requester and only
		// clutter the topic, so they are removed on sight. Every topic
		// rename emits one.
		if err := d.api.DeleteMessage(ctx, msg.Chat.ID, msg.MessageID); err != nil {
			d.log.Debug().Err(err).Msg("delete service message failed")
		}
		return
	}
	if msg.From == nil || msg.From.IsBot {
		return
	}

	if msg.MediaGroupID != "" {
		d.albums.add(msg)
		return
	}

	unit := relay.Unit{
		ChatID:   msg.Chat.ID,
		ThreadID: msg.ThreadID,
		Items:    []relay.Item{{ID: msg.MessageID, Text: msg.Text, Caption: msg.Caption}},
		ReplyTo:  replyRef(msg),
	}
	if err := d.relay.ToUser(ctx, unit); err != nil {
		d.log.Error().Int64("thread_id", msg.ThreadID).Err(err).Msg("relay to user failed")
	}
}

func isServiceMessage(msg *telegram.Message) bool {
	return msg.PinnedMessage != nil ||
		msg.ForumTopicEdited != nil ||
		msg.ForumTopicClosed != nil ||
		msg.ForumTopicReopened != nil
}

func (d *Dispatcher) flushAlbum(first *telegram.Message, unit relay.Unit) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if first.Chat.Type == "private" {
		if first.From == nil {
			return
		}
		rec, err := d.upsertUser(ctx, first.From)
		if err != nil {
			d.log.Error().Int64("user_id", first.From.ID).Err(err).Msg("upsert user failed")
			return
		}
		if err := d.relay.ToStaff(ctx, rec, unit); err != nil {
			d.log.Error().Int64("user_id", rec.ID).Err(err).Msg("relay album to staff failed")
			d.reportConfigError(ctx, err)
		}
		return
	}

	if err := d.relay.ToUser(ctx, unit); err != nil {
		d.log.Error().Int64("thread_id", unit.ThreadID).Err(err).Msg("relay album to user failed")
	}
}

// announce greets the requester's freshly created topic with the pinned
// profile message.
func (d *Dispatcher) announce(ctx context.Context, threadID int64) {
	rec, err := d.users.GetByThreadID(ctx, threadID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			d.log.Error().Int64("thread_id", threadID).Err(err).Msg("lookup by thread failed")
		}
		return
	}
	if err := d.tickets.AnnounceUser(ctx, rec); err != nil {
		d.log.Warn().Int64("user_id", rec.ID).Err(err).Msg("announce failed")
	}
}

// upsertUser records the identity fields we observe on every inbound
// private message.
func (d *Dispatcher) upsertUser(ctx context.Context, from *telegram.User) (*models.UserRecord, error) {
	unlock := d.locks.Lock(from.ID)
	defer unlock()

	rec, err := d.users.Get(ctx, from.ID)
	if errors.Is(err, repository.ErrNotFound) {
		rec = &models.UserRecord{
			ID:                   from.ID,
			NotificationsEnabled: true,
			CreatedAt:            models.NewStoredTime(d.now()),
		}
	} else if err != nil {
		return nil, err
	}

	rec.FullName = from.FullName()
	rec.Username = from.Username
	if from.LanguageCode != "" {
		rec.LanguageCode = from.LanguageCode
	}
	if err := d.users.Put(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
