package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStoredTimeOffsetForm(t *testing.T) {
	got, err := ParseStoredTime("2024-05-01 12:30:45+0300")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 45, 0, time.FixedZone("", 3*60*60)).Unix(), got.Unix())
}

func TestParseStoredTimeLegacyUTCSuffix(t *testing.T) {
	got, err := ParseStoredTime("2024-05-01 12:30:45 UTC+3")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 45, 0, time.UTC).Unix(), got.Unix())
}

func TestParseStoredTimeLegacyBareDefaultsToUTC(t *testing.T) {
	got, err := ParseStoredTime("2024-05-01 12:30:45")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC).Unix(), got.Unix())
}

func TestParseStoredTimeRejectsGarbage(t *testing.T) {
	_, err := ParseStoredTime("yesterday-ish")
	assert.Error(t, err)
}

func TestStoredTimeWritesOffsetForm(t *testing.T) {
	st := NewStoredTime(time.Date(2024, 5, 1, 9, 30, 45, 0, time.UTC))
	assert.Equal(t, "2024-05-01 12:30:45+0300", st.String())
}

func TestUserRecordRoundTrip(t *testing.T) {
	threadID := int64(7)
	last := NewStoredTime(time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC))
	rec := UserRecord{
		ID:                   42,
		FullName:             "Jamie Doe",
		Username:             "jamie",
		ThreadID:             &threadID,
		Status:               StatusOpen,
		SilentMode:           true,
		LanguageCode:         "en",
		LastMessageAt:        &last,
		NotificationsEnabled: true,
		CreatedAt:            NewStoredTime(time.Date(2024, 5, 1, 9, 30, 45, 0, time.UTC)),
	}

	raw, err := json.Marshal(&rec)
	require.NoError(t, err)

	// The stored blob keeps the fixed textual timestamp contract.
	assert.Contains(t, string(raw), `"created_at":"2024-05-01 12:30:45+0300"`)

	var got UserRecord
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Status, got.Status)
	require.NotNil(t, got.ThreadID)
	assert.Equal(t, threadID, *got.ThreadID)
	assert.Equal(t, rec.CreatedAt.String(), got.CreatedAt.String())
	require.NotNil(t, got.LastMessageAt)
	assert.Equal(t, last.String(), got.LastMessageAt.String())
	assert.Nil(t, got.LastNotificationReadAt)
}

func TestUserRecordReadsLegacyTimestamps(t *testing.T) {
	blob := `{"id":1,"full_name":"A","username":"","thread_id":null,"topic_status":"","is_banned":false,` +
		`"silent_mode":false,"silent_pin_message_id":null,"language_code":"",` +
		`"last_message_at":"2024-05-01 12:30:45 UTC+3","notifications_enabled":true,` +
		`"last_notification_read_at":null,"created_at":"2024-05-01 12:30:45"}`

	var rec UserRecord
	require.NoError(t, json.Unmarshal([]byte(blob), &rec))
	assert.Equal(t, StatusNone, rec.Status)
	require.NotNil(t, rec.LastMessageAt)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 30, 45, 0, time.UTC).Unix(), rec.LastMessageAt.Unix())
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 45, 0, time.UTC).Unix(), rec.CreatedAt.Unix())
}
