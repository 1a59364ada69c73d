package bot

import (
	"sync"
	"time"

	"support-relay-bot/internal/features/relay"
	"support-relay-bot/internal/platform/telegram"
)

// Albums arrive as individual messages sharing a media_group_id with no
// terminator, so the buffer holds items briefly and flushes the group as
// one unit once the window passes without another member.
const albumFlushWindow = 600 * time.Millisecond

type albumBuffer struct {
	mu      sync.Mutex
	pending map[string]*pendingAlbum
	flush   func(first *telegram.Message, unit relay.Unit)
}

type pendingAlbum struct {
	first *telegram.Message
	unit  relay.Unit
	timer *time.Timer
}

func newAlbumBuffer(flush func(first *telegram.Message, unit relay.Unit)) *albumBuffer {
	return &albumBuffer{
		pending: make(map[string]*pendingAlbum),
		flush:   flush,
	}
}

func (b *albumBuffer) add(msg *telegram.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item := relay.Item{ID: msg.MessageID, Text: msg.Text, Caption: msg.Caption}

	p, ok := b.pending[msg.MediaGroupID]
	if !ok {
		p = &pendingAlbum{
			first: msg,
			unit: relay.Unit{
				ChatID:   msg.Chat.ID,
				ThreadID: msg.ThreadID,
				Items:    []relay.Item{item},
				ReplyTo:  replyRef(msg),
			},
		}
		b.pending[msg.MediaGroupID] = p
		p.timer = time.AfterFunc(albumFlushWindow, func() { b.fire(msg.MediaGroupID) })
		return
	}

	p.unit.Items = append(p.unit.Items, item)
	p.timer.Reset(albumFlushWindow)
}

func (b *albumBuffer) fire(mediaGroupID string) {
	b.mu.Lock()
	p, ok := b.pending[mediaGroupID]
	delete(b.pending, mediaGroupID)
	b.mu.Unlock()

	if ok {
		b.flush(p.first, p.unit)
	}
}

func replyRef(msg *telegram.Message) *relay.ReplyRef {
	if msg.ReplyToMessage == nil {
		return nil
	}
	summary := msg.ReplyToMessage.Text
	if summary == "" {
		summary = msg.ReplyToMessage.Caption
	}
	return &relay.ReplyRef{ID: msg.ReplyToMessage.MessageID, Summary: summary}
}
