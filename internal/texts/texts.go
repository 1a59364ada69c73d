// Package texts carries the user-facing template strings in the two
// languages the bot ships. Rendering is plain fmt-style substitution;
// anything fancier belongs to the callers.
package texts

import "fmt"

type Bundle struct {
	messages map[string]map[string]string
}

func NewBundle() *Bundle {
	return &Bundle{messages: defaultMessages}
}

// For returns a localized getter. Unknown languages fall back to English.
func (b *Bundle) For(languageCode string) Localized {
	lang := "en"
	if _, ok := b.messages[languageCode]; ok {
		lang = languageCode
	}
	return Localized{bundle: b, lang: lang}
}

type Localized struct {
	bundle *Bundle
	lang   string
}

func (l Localized) Get(key string) string {
	if msg, ok := l.bundle.messages[l.lang][key]; ok {
		return msg
	}
	return l.bundle.messages["en"][key]
}

func (l Localized) Getf(key string, args ...any) string {
	return fmt.Sprintf(l.Get(key), args...)
}

var defaultMessages = map[string]map[string]string{
	"en": {
		"message_sent":            "Message sent! Please wait for a reply.\n\nYour position in the queue: %d",
		"message_sent_topic_open": "Message sent! Our support team is already working on your request.",
		"message_edited":          "Message editing is not supported, please send a new message.",
		"message_sent_to_user":    "Message sent to the user!",
		"message_not_sent":        "Message not sent! An unexpected error occurred.",
		"blocked_by_user":         "Message not sent! The bot was blocked by the user.",
		"topic_closed_warning":    "The ticket is closed! Reopen it to message the user.",
		"topic_closed_by_sweep":   "Your ticket was closed due to inactivity. Send a new message to reopen it.",
		"user_started_bot":        "New ticket from %s",
		"silent_mode_enabled":     "🔇 Silent mode is on: messages in this topic are not relayed to the user.",
		"reply_header":            "Reply to:\n%s",
		"media_placeholder":       "[media]",
		"caption_item":            "Photo %d: %s",
		"caption_item_empty":      "Photo %d: [no caption]",
		"captions_title":          "Captions:\n\n%s",
		"notifications_title":     "System notifications",
		"notification_critical":   "❗️ %s",
		"notification_important":  "📌 %s",
	},
	"ru": {
		"message_sent":            "Сообщение отправлено! Ожидайте ответа.\n\nВаша позиция в очереди: %d",
		"message_sent_topic_open": "Сообщение отправлено! Наша поддержка уже работает над вашим обращением.",
		"message_edited":          "Редактирование сообщений не поддерживается, отправьте новое сообщение.",
		"message_sent_to_user":    "Сообщение отправлено пользователю!",
		"message_not_sent":        "Сообщение не отправлено! Произошла неожиданная ошибка.",
		"blocked_by_user":         "Сообщение не отправлено! Бот был заблокирован пользователем.",
		"topic_closed_warning":    "Топик закрыт! Откройте топик, чтобы отправлять сообщения пользователю.",
		"topic_closed_by_sweep":   "Ваше обращение закрыто из-за отсутствия активности. Отправьте новое сообщение, чтобы открыть его снова.",
		"user_started_bot":        "Новое обращение от %s",
		"silent_mode_enabled":     "🔇 Тихий режим включён: сообщения из этого топика не пересылаются пользователю.",
		"reply_header":            "Ответ на сообщение:\n%s",
		"media_placeholder":       "[медиа]",
		"caption_item":            "Фото %d: %s",
		"caption_item_empty":      "Фото %d: [без подписи]",
		"captions_title":          "Подписи к медиа:\n\n%s",
		"notifications_title":     "Системные уведомления",
		"notification_critical":   "❗️ %s",
		"notification_important":  "📌 %s",
	},
}
