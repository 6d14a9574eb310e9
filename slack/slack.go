package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type message struct {
	Text string `json:"text"`
}

type Client struct {
	webhookURL string
	httpc      *http.Client
}

func NewClient(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpc:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts a text notification to the configured incoming webhook.
func (c *Client) Send(ctx context.Context, text string) error {
	if c.webhookURL == "" {
		return errors.New("slack webhook URL is not configured")
	}

	payload, err := json.Marshal(message{Text: text})
	if err != nil {
		return errors.Wrap(err, "failed to marshal slack message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "failed to build slack request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send slack notification")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("slack API returned status code %d", resp.StatusCode)
	}

	log.Debug().Msg("sent slack notification")
	return nil
}
