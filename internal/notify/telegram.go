package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Telegram posts messages to a chat through the bot API. Callers treat
// delivery as best-effort and only log failures.
type Telegram struct {
	BotToken   string
	ChatID     string
	BaseURL    string
	HTTPClient *http.Client
}

func NewTelegram(botToken, chatID string, httpClient *http.Client) *Telegram {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Telegram{
		BotToken:   botToken,
		ChatID:     chatID,
		BaseURL:    "https://api.telegram.org",
		HTTPClient: httpClient,
	}
}

func (t *Telegram) Notify(ctx context.Context, text string) error {
	params := map[string]string{
		"chat_id": t.ChatID,
		"text":    text,
	}
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := t.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("telegram responded with %s", res.Status)
	}
	return nil
}
