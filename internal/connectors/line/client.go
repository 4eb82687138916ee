// Package line connects the assistant to the LINE Messaging API: a webhook
// receiver for inbound events and a client for reply and push delivery.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hibari-ai/officebot/internal/boterr"
)

type Client struct {
	channelToken string
	baseURL      string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewClient(channelToken, baseURL string, logger *slog.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.line.me"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		channelToken: strings.TrimSpace(channelToken),
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger.With("component", "line"),
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reply answers an inbound event using its one-shot reply token.
func (c *Client) Reply(ctx context.Context, replyToken, text string) error {
	payload := map[string]any{
		"replyToken": replyToken,
		"messages":   []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

// SendMessage pushes a message outside a reply window. This is the transport
// the relay workflow broadcasts through.
func (c *Client) SendMessage(ctx context.Context, userID, text string) error {
	payload := map[string]any{
		"to":       userID,
		"messages": []textMessage{{Type: "text", Text: text}},
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c.channelToken == "" {
		return fmt.Errorf("%w: channel token not configured", boterr.ErrDeliveryFailed)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal line payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.channelToken)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", boterr.ErrDeliveryFailed, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		c.logger.Warn("line api call failed", "path", path, "status", res.StatusCode, "body", strings.TrimSpace(string(detail)))
		return fmt.Errorf("%w: line api status %d", boterr.ErrDeliveryFailed, res.StatusCode)
	}
	return nil
}
