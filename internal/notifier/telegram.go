package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const telegramAttempts = 3

// Telegram pushes alert text to a chat or channel.
type Telegram struct {
	BotToken string
	ChatID   string
	Client   *http.Client

	apiBase    string
	retryDelay time.Duration
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		BotToken:   botToken,
		ChatID:     chatID,
		Client:     &http.Client{Timeout: 15 * time.Second},
		apiBase:    "https://api.telegram.org",
		retryDelay: time.Second,
	}
}

// SendText delivers a text message with up to 3 attempts. There is no delay
// after the final attempt.
func (t *Telegram) SendText(text string) error {
	if t.BotToken == "" || t.ChatID == "" {
		return fmt.Errorf("telegram configuration incomplete")
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.BotToken)

	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, _ := json.Marshal(payload)

	var lastErr error
	for i := 0; i < telegramAttempts; i++ {
		if err := t.post(url, body); err != nil {
			lastErr = err
			if i < telegramAttempts-1 {
				time.Sleep(time.Duration(i+1) * t.retryDelay)
			}
			continue
		}
		return nil
	}
	return lastErr
}

func (t *Telegram) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.Client.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	return nil
}
