package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the narrow surface the ticket and relay layers consume. The
// concrete Client talks to the Bot API; tests substitute fakes.
type API interface {
	CreateForumTopic(ctx context.Context, chatID int64, name, iconEmojiID string) (int64, error)
	EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error
	CloseForumTopic(ctx context.Context, chatID, threadID int64) error
	ReopenForumTopic(ctx context.Context, chatID, threadID int64) error
	CopyMessage(ctx context.Context, req CopyRequest) (int64, error)
	SendMessage(ctx context.Context, req SendRequest) (int64, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	PinChatMessage(ctx context.Context, chatID, messageID int64) error
}

const defaultBaseURL = "https://api.telegram.org"

// Thread creation is the slowest call we make; the platform client's own
// timeout bounds every operation.
const requestTimeout = 30 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
	}
}

// NewClientWithBaseURL is used by tests pointing at an httptest server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type response struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name, iconEmojiID string) (int64, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(chatID, 10)},
		"name":    {name},
	}
	if iconEmojiID != "" {
		params.Set("icon_custom_emoji_id", iconEmojiID)
	}

	raw, err := c.call(ctx, "createForumTopic", params)
	if err != nil {
		return 0, err
	}

	var topic struct {
		ThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(raw, &topic); err != nil {
		return 0, fmt.Errorf("parse createForumTopic result: %w", err)
	}
	return topic.ThreadID, nil
}

func (c *Client) EditForumTopic(ctx context.Context, chatID, threadID int64, name string) error {
	_, err := c.call(ctx, "editForumTopic", url.Values{
		"chat_id":           {strconv.FormatInt(chatID, 10)},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
		"name":              {name},
	})
	return err
}

func (c *Client) CloseForumTopic(ctx context.Context, chatID, threadID int64) error {
	_, err := c.call(ctx, "closeForumTopic", url.Values{
		"chat_id":           {strconv.FormatInt(chatID, 10)},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
	})
	return err
}

func (c *Client) ReopenForumTopic(ctx context.Context, chatID, threadID int64) error {
	_, err := c.call(ctx, "reopenForumTopic", url.Values{
		"chat_id":           {strconv.FormatInt(chatID, 10)},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
	})
	return err
}

func (c *Client) CopyMessage(ctx context.Context, req CopyRequest) (int64, error) {
	params := url.Values{
		"chat_id":      {strconv.FormatInt(req.ToChatID, 10)},
		"from_chat_id": {strconv.FormatInt(req.FromChatID, 10)},
		"message_id":   {strconv.FormatInt(req.MessageID, 10)},
	}
	if req.ThreadID != 0 {
		params.Set("message_thread_id", strconv.FormatInt(req.ThreadID, 10))
	}
	if req.ReplyToID != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(req.ReplyToID, 10))
	}

	raw, err := c.call(ctx, "copyMessage", params)
	if err != nil {
		return 0, err
	}

	var copied struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &copied); err != nil {
		return 0, fmt.Errorf("parse copyMessage result: %w", err)
	}
	return copied.MessageID, nil
}

func (c *Client) SendMessage(ctx context.Context, req SendRequest) (int64, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(req.ChatID, 10)},
		"text":    {req.Text},
	}
	if req.ThreadID != 0 {
		params.Set("message_thread_id", strconv.FormatInt(req.ThreadID, 10))
	}
	if req.ReplyToID != 0 {
		params.Set("reply_to_message_id", strconv.FormatInt(req.ReplyToID, 10))
	}
	if req.ParseMode != "" {
		params.Set("parse_mode", req.ParseMode)
	}

	raw, err := c.call(ctx, "sendMessage", params)
	if err != nil {
		return 0, err
	}

	var sent struct {
		MessageID int64 `json:"message_id"`
	}
	if err := json.Unmarshal(raw, &sent); err != nil {
		return 0, fmt.Errorf("parse sendMessage result: %w", err)
	}
	return sent.MessageID, nil
}

func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "deleteMessage", url.Values{
		"chat_id":    {strconv.FormatInt(chatID, 10)},
		"message_id": {strconv.FormatInt(messageID, 10)},
	})
	return err
}

func (c *Client) PinChatMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := c.call(ctx, "pinChatMessage", url.Values{
		"chat_id":              {strconv.FormatInt(chatID, 10)},
		"message_id":           {strconv.FormatInt(messageID, 10)},
		"disable_notification": {"true"},
	})
	return err
}

// GetUpdates long-polls the Bot API. timeout is the server-side hold in
// seconds; the HTTP client timeout must exceed it.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout int) ([]Update, error) {
	raw, err := c.call(ctx, "getUpdates", url.Values{
		"offset":  {strconv.FormatInt(offset, 10)},
		"timeout": {strconv.Itoa(timeout)},
	})
	if err != nil {
		return nil, err
	}

	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("parse getUpdates result: %w", err)
	}
	return updates, nil
}

func (c *Client) call(ctx context.Context, method string, params url.Values) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", method, err)
	}

	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", method, err)
	}
	if !r.Ok {
		retryAfter := 0
		if r.Parameters != nil {
			retryAfter = r.Parameters.RetryAfter
		}
		return nil, fmt.Errorf("%s: %w", method, apiError(r.ErrorCode, r.Description, retryAfter))
	}
	return r.Result, nil
}
