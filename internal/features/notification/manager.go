// Package notification manages the global operator announcement list.
// The whole list lives as one JSON blob under a fixed key; concurrent
// edits are last-write-wins at list granularity, which is acceptable for
// the rare single-operator writes it sees.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"support-relay-bot/internal/features/user/models"
	"support-relay-bot/internal/features/user/repository"
	"support-relay-bot/internal/platform/telegram"
	"support-relay-bot/internal/texts"
)

const notificationsKey = "system_notifications"

type Importance string

const (
	ImportanceNormal    Importance = "normal"
	ImportanceImportant Importance = "important"
	ImportanceCritical  Importance = "critical"
)

func (i Importance) Valid() bool {
	switch i {
	case ImportanceNormal, ImportanceImportant, ImportanceCritical:
		return true
	}
	return false
}

type Notification struct {
	ID         string             `json:"id"`
	Message    string             `json:"message"`
	Importance Importance         `json:"importance"`
	CreatedAt  models.StoredTime  `json:"created_at"`
	ExpiryAt   *models.StoredTime `json:"expiry_at"`
}

// Blobs is the single-key storage the manager needs.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Sender posts rendered notifications to a requester.
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendRequest) (int64, error)
}

type Manager struct {
	blobs  Blobs
	users  repository.UserRepository
	sender Sender
	texts  *texts.Bundle
	log    zerolog.Logger
	now    func() time.Time
}

func NewManager(blobs Blobs, users repository.UserRepository, sender Sender, bundle *texts.Bundle, log zerolog.Logger) *Manager {
	return &Manager{
		blobs:  blobs,
		users:  users,
		sender: sender,
		texts:  bundle,
		log:    log.With().Str("component", "notification").Logger(),
		now:    time.Now,
	}
}

// Add appends a notification. IDs are time-derived to stay readable next
// to existing stored blobs.
func (m *Manager) Add(ctx context.Context, message string, importance Importance, expiryAt *time.Time) (Notification, error) {
	if !importance.Valid() {
		return Notification{}, fmt.Errorf("invalid importance %q", importance)
	}

	now := m.now()
	n := Notification{
		ID:         fmt.Sprintf("notif_%d", now.Unix()),
		Message:    message,
		Importance: importance,
		CreatedAt:  models.NewStoredTime(now),
	}
	if expiryAt != nil {
		t := models.NewStoredTime(*expiryAt)
		n.ExpiryAt = &t
	}

	list, err := m.load(ctx)
	if err != nil {
		return Notification{}, err
	}
	return n, m.save(ctx, append(list, n))
}

func (m *Manager) Remove(ctx context.Context, id string) error {
	list, err := m.load(ctx)
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, n := range list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	return m.save(ctx, kept)
}

func (m *Manager) Clear(ctx context.Context) error {
	return m.save(ctx, nil)
}

// List returns notifications still in effect. Expired entries are
// filtered on every read; they stay in the blob until an admin edit
// rewrites it.
func (m *Manager) List(ctx context.Context) ([]Notification, error) {
	list, err := m.load(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	active := make([]Notification, 0, len(list))
	for _, n := range list {
		if n.ExpiryAt != nil && n.ExpiryAt.Before(now) {
			continue
		}
		active = append(active, n)
	}
	return active, nil
}

// UnreadImportant returns important and critical notifications created
// after the requester last read them. A requester who never read gets
// everything important.
func (m *Manager) UnreadImportant(ctx context.Context, rec *models.UserRecord) ([]Notification, error) {
	if !rec.NotificationsEnabled {
		return nil, nil
	}

	active, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var unread []Notification
	for _, n := range active {
		if n.Importance != ImportanceImportant && n.Importance != ImportanceCritical {
			continue
		}
		if rec.LastNotificationReadAt != nil && !n.CreatedAt.After(rec.LastNotificationReadAt.Time) {
			continue
		}
		unread = append(unread, n)
	}
	return unread, nil
}

// ShowImportantWithConfirmation renders unread important notifications to
// the requester and reports whether anything was shown. It does not mark
// them read; that happens on the requester's explicit confirmation.
func (m *Manager) ShowImportantWithConfirmation(ctx context.Context, rec *models.UserRecord) (bool, error) {
	unread, err := m.UnreadImportant(ctx, rec)
	if err != nil {
		return false, err
	}
	if len(unread) == 0 {
		return false, nil
	}

	t := m.texts.For(rec.LanguageCode)
	var b strings.Builder
	b.WriteString(t.Get("notifications_title"))
	b.WriteString("\n\n")
	for _, n := range unread {
		key := "notification_important"
		if n.Importance == ImportanceCritical {
			key = "notification_critical"
		}
		b.WriteString(t.Getf(key, n.Message))
		b.WriteString("\n")
		b.WriteString(n.CreatedAt.String())
		b.WriteString("\n\n")
	}

	if _, err := m.sender.SendMessage(ctx, telegram.SendRequest{ChatID: rec.ID, Text: b.String()}); err != nil {
		return false, fmt.Errorf("send notifications to %d: %w", rec.ID, err)
	}
	return true, nil
}

// MarkRead stamps the requester's record with the current time.
func (m *Manager) MarkRead(ctx context.Context, rec *models.UserRecord) error {
	t := models.NewStoredTime(m.now())
	rec.LastNotificationReadAt = &t
	return m.users.Put(ctx, rec)
}

func (m *Manager) load(ctx context.Context) ([]Notification, error) {
	raw, ok, err := m.blobs.Get(ctx, notificationsKey)
	if err != nil {
		return nil, fmt.Errorf("load notifications: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var list []Notification
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode notifications: %w", err)
	}
	return list, nil
}

func (m *Manager) save(ctx context.Context, list []Notification) error {
	if list == nil {
		list = []Notification{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode notifications: %w", err)
	}
	if err := m.blobs.Set(ctx, notificationsKey, raw); err != nil {
		return fmt.Errorf("save notifications: %w", err)
	}
	return nil
}

// RedisBlobs adapts the shared Redis client to the Blobs interface.
type RedisBlobs struct {
	Client *redis.Client
}

func (b RedisBlobs) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := b.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (b RedisBlobs) Set(ctx context.Context, key string, value []byte) error {
	return b.Client.Set(ctx, key, value, 0).Err()
}
