package relay

// Item is one copyable message with the narrow capabilities the relay
// needs: identity, text and caption.
type Item struct {
	ID      int64
	Text    string
	Caption string
}

// ReplyRef points at the message the inbound unit replies to, with a
// short textual summary used for the quoted fallback when no mapping
// survives.
type ReplyRef struct {
	ID      int64
	Summary string
}

// Unit is one inbound delivery: a single message or a grouped album.
// Albums carry their items in send order; the first item anchors reply
// linkage and mapping entries.
type Unit struct {
	// Chat the unit arrived in.
	ChatID int64
	// Source forum topic for staff-side units, 0 for private chats.
	ThreadID int64
	Items    []Item
	ReplyTo  *ReplyRef
}

func (u *Unit) IsAlbum() bool { return len(u.Items) > 1 }

func (u *Unit) First() Item { return u.Items[0] }
