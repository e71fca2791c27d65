package telegram

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.telegram.org"

// BotAPI is a minimal Telegram Bot API client for outbound messages.
type BotAPI struct {
	token  string
	client *resty.Client
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// NewBotAPI creates a new Bot API client.
func NewBotAPI(token string) *BotAPI {
	return NewBotAPIWithBaseURL(token, defaultBaseURL)
}

// NewBotAPIWithBaseURL points the client at another API host, e.g. a local
// Bot API server.
func NewBotAPIWithBaseURL(token, baseURL string) *BotAPI {
	return &BotAPI{
		token:  token,
		client: resty.New().SetBaseURL(baseURL + "/bot" + token),
	}
}

// Call makes a raw API call and returns the result payload.
func (b *BotAPI) Call(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	var out apiResponse
	resp, err := b.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(params).
		SetResult(&out).
		SetError(&out).
		Post("/" + method)
	if err != nil {
		return nil, fmt.Errorf("telegram API call %s failed: %w", method, err)
	}
	if !out.OK {
		return nil, fmt.Errorf("telegram API call %s: status %d: %s", method, resp.StatusCode(), out.Description)
	}
	return out.Result, nil
}

// SendMessage sends an HTML-formatted text message.
func (b *BotAPI) SendMessage(ctx context.Context, chatID string, text string) error {
	_, err := b.Call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":                  chatID,
		"text":                     text,
		"parse_mode":               "HTML",
		"disable_web_page_preview": true,
	})
	return err
}
