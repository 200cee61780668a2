package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChatChannel posts a structured payload to a chat webhook URL (Slack,
// Mattermost, and similar incoming-webhook endpoints all accept this shape).
type ChatChannel struct {
	webhookURL string
	httpClient *http.Client
}

func NewChatChannel(webhookURL string) *ChatChannel {
	return &ChatChannel{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(map[string]string{
		"text":         fmt.Sprintf("*%s*\n%s", msg.Subject, msg.Body),
		"operation_id": msg.OperationID,
		"status":       string(msg.Status),
	})
	if err != nil {
		return fmt.Errorf("marshaling chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting to chat webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned %d", resp.StatusCode)
	}
	return nil
}
