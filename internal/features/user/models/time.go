package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Stored timestamps are fixed-format strings. Writes always use the
// offset layout; reads additionally tolerate two legacy variants that
// exist in production data: a textual " UTC+N" suffix and a bare
// datetime with no offset at all (interpreted as UTC).
const storedTimeLayout = "2006-01-02 15:04:05-0700"

const bareTimeLayout = "2006-01-02 15:04:05"

// StoredOffset is the zone all new writes are normalized to.
var StoredOffset = time.FixedZone("UTC+3", 3*60*60)

// StoredTime is a timestamp carrying the store's textual format through
// JSON. The zero value marshals as null.
type StoredTime struct {
	time.Time
}

func NewStoredTime(t time.Time) StoredTime {
	return StoredTime{t.In(StoredOffset)}
}

func (t StoredTime) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(storedTimeLayout)
}

func (t StoredTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(t.Format(storedTimeLayout))), nil
}

func (t *StoredTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*t = StoredTime{}
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return fmt.Errorf("stored time %s: %w", s, err)
	}
	if unquoted == "" {
		*t = StoredTime{}
		return nil
	}
	parsed, err := ParseStoredTime(unquoted)
	if err != nil {
		return err
	}
	*t = StoredTime{parsed}
	return nil
}

// ParseStoredTime accepts the current offset form plus the two legacy
// variants described above.
func ParseStoredTime(value string) (time.Time, error) {
	if t, err := time.Parse(storedTimeLayout, value); err == nil {
		return t, nil
	}

	if base, suffix, ok := strings.Cut(value, " UTC+"); ok {
		t, err := time.Parse(bareTimeLayout, base)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
		}
		hours, err := strconv.Atoi(strings.SplitN(suffix, ":", 2)[0])
		if err != nil {
			return time.Time{}, fmt.Errorf("parse stored time offset %q: %w", value, err)
		}
		zone := time.FixedZone(fmt.Sprintf("UTC+%d", hours), hours*60*60)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, zone), nil
	}

	t, err := time.Parse(bareTimeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", value, err)
	}
	return t.UTC(), nil
}
