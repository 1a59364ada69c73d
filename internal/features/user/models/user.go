package models

import (
	"encoding/json"
	"strconv"
)

// Status is the lifecycle state of a requester's ticket. The empty string
// is "none": no ticket yet, or the topic was never created. Empty rather
// than a literal "none" keeps existing stored records readable.
type Status string

const (
	StatusNone   Status = ""
	StatusNew    Status = "new"
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// UserRecord is the per-requester blob. One JSON value per requester
// under a shared hash; fields are cleared, never deleted.
type UserRecord struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
	Username string `json:"username"`

	// Forum topic hosting this requester's ticket, nil until the first
	// ticket is created. Invariant: non-nil whenever Status != none.
	ThreadID *int64 `json:"thread_id"`
	Status   Status `json:"topic_status"`

	IsBanned           bool   `json:"is_banned"`
	SilentMode         bool   `json:"silent_mode"`
	SilentPinMessageID *int64 `json:"silent_pin_message_id"`

	LanguageCode string `json:"language_code"`

	LastMessageAt          *StoredTime `json:"last_message_at"`
	NotificationsEnabled   bool        `json:"notifications_enabled"`
	LastNotificationReadAt *StoredTime `json:"last_notification_read_at"`

	CreatedAt StoredTime `json:"created_at"`
}

// UnmarshalJSON decodes with notifications enabled unless the blob says
// otherwise. Old records predate the field; its absence means the
// requester never opted out.
func (u *UserRecord) UnmarshalJSON(data []byte) error {
	type plain UserRecord
	rec := plain{NotificationsEnabled: true}
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*u = UserRecord(rec)
	return nil
}

func (u *UserRecord) Thread() (int64, bool) {
	if u.ThreadID == nil {
		return 0, false
	}
	return *u.ThreadID, true
}

// ProfileURL builds the link staff sees in the greeting message.
func (u *UserRecord) ProfileURL() string {
	if u.Username != "" && u.Username != "-" {
		name := u.Username
		if name[0] == '@' {
			name = name[1:]
		}
		return "https://t.me/" + name
	}
	return "tg://user?id=" + strconv.FormatInt(u.ID, 10)
}
