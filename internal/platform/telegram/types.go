package telegram

// Update is a single getUpdates entry, narrowed to the fields the
// dispatcher routes on.
type Update struct {
	UpdateID      int64    `json:"update_id"`
	Message       *Message `json:"message,omitempty"`
	EditedMessage *Message `json:"edited_message,omitempty"`
}

type Message struct {
	MessageID      int64    `json:"message_id"`
	From           *User    `json:"from,omitempty"`
	Chat           Chat     `json:"chat"`
	Date           int64    `json:"date"`
	ThreadID       int64    `json:"message_thread_id,omitempty"`
	Text           string   `json:"text,omitempty"`
	Caption        string   `json:"caption,omitempty"`
	MediaGroupID   string   `json:"media_group_id,omitempty"`
	ReplyToMessage *Message `json:"reply_to_message,omitempty"`

	ForumTopicEvent    *ForumTopicCreated  `json:"forum_topic_created,omitempty"`
	ForumTopicEdited   *ForumTopicEdited   `json:"forum_topic_edited,omitempty"`
	ForumTopicClosed   *ForumTopicClosed   `json:"forum_topic_closed,omitempty"`
	ForumTopicReopened *ForumTopicReopened `json:"forum_topic_reopened,omitempty"`
	PinnedMessage      *Message            `json:"pinned_message,omitempty"`
}

type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type ForumTopicCreated struct {
	Name string `json:"name"`
}

type ForumTopicEdited struct {
	Name string `json:"name,omitempty"`
}

// Close and reopen service events carry no payload.
type ForumTopicClosed struct{}

type ForumTopicReopened struct{}

// CopyRequest describes one copyMessage call across the bridge.
type CopyRequest struct {
	FromChatID int64
	ToChatID   int64
	MessageID  int64
	// Destination forum topic, 0 for a private chat.
	ThreadID int64
	// Message in the destination chat to reply to, 0 for none.
	ReplyToID int64
}

// SendRequest describes one sendMessage call.
type SendRequest struct {
	ChatID    int64
	ThreadID  int64
	ReplyToID int64
	Text      string
	ParseMode string
}
