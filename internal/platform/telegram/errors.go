package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors mapped from Bot API error descriptions. Callers branch
// with errors.Is; everything unrecognized surfaces as a plain error.
var (
	ErrNotModified     = errors.New("topic not modified")
	ErrTopicClosed     = errors.New("topic already closed")
	ErrThreadNotFound  = errors.New("message thread not found")
	ErrBlocked         = errors.New("bot was blocked by the user")
	ErrNotEnoughRights = errors.New("not enough rights to manage topics")
	ErrNotAForum       = errors.New("chat is not a forum")
)

// RateLimitedError reports a flood-wait response. RetryAfter carries the
// server-specified backoff.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// apiError converts a Bot API failure response into a typed error.
func apiError(code int, description string, retryAfter int) error {
	if code == 429 || retryAfter > 0 {
		return &RateLimitedError{RetryAfter: time.Duration(retryAfter) * time.Second}
	}
	desc := strings.ToLower(description)
	switch {
	case strings.Contains(desc, "topic_not_modified"), strings.Contains(desc, "not modified"):
		return ErrNotModified
	case strings.Contains(desc, "topic_closed"):
		return ErrTopicClosed
	case strings.Contains(desc, "thread not found"):
		return ErrThreadNotFound
	case strings.Contains(desc, "blocked"):
		return ErrBlocked
	case strings.Contains(desc, "not enough rights"):
		return ErrNotEnoughRights
	case strings.Contains(desc, "not a forum"):
		return ErrNotAForum
	}
	return fmt.Errorf("telegram API error %d: %s", code, description)
}
