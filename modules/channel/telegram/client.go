package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const (
	maxRetries       = 3
	initialBackoff   = time.Second
	maxResponseBytes = 10 << 20 // 10 MiB, bounds reads of API responses.
)

// Client is a thin HTTP wrapper around the Telegram Bot API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Telegram Bot API client.
func NewClient(token, baseURL string) *Client {
	return &Client{
		token:   token,
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// bodyFunc returns a fresh request body and its content type. It is called
// once per attempt so retries resend the full payload.
type bodyFunc func() (io.Reader, string)

// do sends a JSON POST request to the given Bot API method and decodes the response.
func do[T any](ctx context.Context, c *Client, method string, payload any) (*T, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("telegram: marshal %s request: %w", method, err)
		}
	}
	return send[T](ctx, c, method, func() (io.Reader, string) {
		if data == nil {
			return nil, ""
		}
		return bytes.NewReader(data), "application/json"
	})
}

// upload sends a multipart/form-data request carrying one file.
func upload[T any](ctx context.Context, c *Client, method string, fields map[string]string, fileField, fileName string, file []byte) (*T, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("telegram: build %s form: %w", method, err)
		}
	}
	part, err := w.CreateFormFile(fileField, fileName)
	if err != nil {
		return nil, fmt.Errorf("telegram: build %s form: %w", method, err)
	}
	if _, err := part.Write(file); err != nil {
		return nil, fmt.Errorf("telegram: build %s form: %w", method, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("telegram: build %s form: %w", method, err)
	}

	body, contentType := buf.Bytes(), w.FormDataContentType()
	return send[T](ctx, c, method, func() (io.Reader, string) {
		return bytes.NewReader(body), contentType
	})
}

// send performs the request. It handles 429 rate limiting with Retry-After
// (max 3 attempts, exponential backoff otherwise).
func send[T any](ctx context.Context, c *Client, method string, body bodyFunc) (*T, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	backoff := initialBackoff

	for attempt := range maxRetries {
		reader, contentType := body()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
		if err != nil {
			return nil, fmt.Errorf("telegram: create %s request: %w", method, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			// The *url.Error carries the token-bearing URL; the redacting
			// log handler masks it.
			return nil, fmt.Errorf("telegram: %s request failed: %w", method, err)
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("telegram: read %s response: %w", method, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRetries-1 {
			var apiResp APIResponse[json.RawMessage]
			if err := json.Unmarshal(respBody, &apiResp); err == nil && apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
				backoff = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
			}

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			continue
		}

		var apiResp APIResponse[T]
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("telegram: decode %s response: %w", method, err)
		}

		if !apiResp.OK {
			apiErr := &APIError{
				Code:        apiResp.ErrorCode,
				Description: apiResp.Description,
			}
			if apiResp.Parameters != nil {
				apiErr.RetryAfter = apiResp.Parameters.RetryAfter
			}
			return nil, apiErr
		}

		return &apiResp.Result, nil
	}

	return nil, fmt.Errorf("telegram: %s: max retries exceeded", method)
}

// GetUpdatesRequest is the request body for the getUpdates method.
type GetUpdatesRequest struct {
	Offset         int      `json:"offset,omitempty"`
	Limit          int      `json:"limit,omitempty"`
	Timeout        int      `json:"timeout,omitempty"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// SendMessageRequest is the request body for the sendMessage method.
type SendMessageRequest struct {
	ChatID                int64                 `json:"chat_id"`
	Text                  string                `json:"text"`
	ParseMode             string                `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool                  `json:"disable_web_page_preview,omitempty"`
	ReplyMarkup           *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// EditMessageReplyMarkupRequest is the request body for editMessageReplyMarkup.
// A nil ReplyMarkup removes the keyboard.
type EditMessageReplyMarkupRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int                   `json:"message_id"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// AnswerCallbackQueryRequest is the request body for answerCallbackQuery.
type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
}

// sendChatActionRequest is the request body for the sendChatAction method.
type sendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

type setMyCommandsRequest struct {
	Commands []BotCommand `json:"commands"`
}

// GetMe returns the bot's user information.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	return do[User](ctx, c, "getMe", nil)
}

// GetUpdates fetches incoming updates using long polling.
func (c *Client) GetUpdates(ctx context.Context, req GetUpdatesRequest) ([]Update, error) {
	result, err := do[[]Update](ctx, c, "getUpdates", req)
	if err != nil {
		return nil, err
	}
	return *result, nil
}

// SendMessage sends a text message to the specified chat.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*Message, error) {
	return do[Message](ctx, c, "sendMessage", req)
}

// SendPhoto uploads an in-memory image to the specified chat.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileName string, data []byte, caption string) (*Message, error) {
	fields := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if caption != "" {
		fields["caption"] = caption
	}
	return upload[Message](ctx, c, "sendPhoto", fields, "photo", fileName, data)
}

// SendChatAction sends a chat action (e.g., "typing") to the specified chat.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	_, err := do[bool](ctx, c, "sendChatAction", sendChatActionRequest{
		ChatID: chatID,
		Action: action,
	})
	return err
}

// AnswerCallbackQuery acknowledges a button press.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	_, err := do[bool](ctx, c, "answerCallbackQuery", req)
	return err
}

// EditMessageReplyMarkup replaces or removes the inline keyboard of a message.
func (c *Client) EditMessageReplyMarkup(ctx context.Context, req EditMessageReplyMarkupRequest) error {
	// The result is the edited Message, or true for inline messages.
	_, err := do[json.RawMessage](ctx, c, "editMessageReplyMarkup", req)
	return err
}

// SetMyCommands replaces the bot's command menu.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	_, err := do[bool](ctx, c, "setMyCommands", setMyCommandsRequest{Commands: commands})
	return err
}
