package notify

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TelegramAPI is the public Bot API base URL.
const TelegramAPI = "https://api.telegram.org"

// Message length caps imposed by each service.
const (
	telegramMaxText   = 4096
	discordMaxContent = 2000
)

// webhook posts a JSON rendering of each Message to a fixed URL.
type webhook struct {
	name   string
	url    string
	client *http.Client
	render func(Message) any
}

// Telegram delivers to chatID through the Bot API sendMessage method. An
// empty apiBase selects TelegramAPI.
func Telegram(apiBase, token, chatID string, client *http.Client) Channel {
	base := strings.TrimRight(cmp.Or(apiBase, TelegramAPI), "/")
	return &webhook{
		name:   "telegram",
		url:    base + "/bot" + token + "/sendMessage",
		client: client,
		render: func(m Message) any {
			return struct {
				ChatID    string `json:"chat_id"`
				Text      string `json:"text"`
				ParseMode string `json:"parse_mode"`
			}{chatID, clip("*"+m.Title+"*\n"+m.Body, telegramMaxText), "Markdown"}
		},
	}
}

// Discord delivers to a Discord channel webhook.
func Discord(webhookURL string, client *http.Client) Channel {
	return &webhook{
		name:   "discord",
		url:    webhookURL,
		client: client,
		render: func(m Message) any {
			return struct {
				Content string `json:"content"`
			}{clip("**"+m.Title+"**\n"+m.Body, discordMaxContent)}
		},
	}
}

func (w *webhook) Name() string { return w.name }

func (w *webhook) Deliver(ctx context.Context, m Message) error {
	body, err := json.Marshal(w.render(m))
	if err != nil {
		return fmt.Errorf("%s: encode: %w", w.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", w.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.client
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: post: %w", w.name, err)
	}
	defer resp.Body.Close()

	// Discord answers 204, Telegram 200.
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", w.name, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return nil
}

// clip shortens s to at most n runes, marking the cut with an ellipsis.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

