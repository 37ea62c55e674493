// Package line implements the subset of the LINE Messaging API the webhook
// needs: replying to events and downloading message content.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
)

const (
	defaultAPIBaseURL  = "https://api.line.me"
	defaultBlobBaseURL = "https://api-data.line.me"

	// slips are photos; anything larger is not a slip
	maxContentBytes = 10 << 20
)

// ClientInterface defines the LINE operations used by the webhook handler.
type ClientInterface interface {
	ReplyMessage(ctx context.Context, replyToken, text string) error
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
}

type Client struct {
	apiBaseURL  string
	blobBaseURL string
	accessToken string
	httpClient  *http.Client
}

type replyRequest struct {
	ReplyToken string         `json:"replyToken"`
	Messages   []replyMessage `json:"messages"`
}

type replyMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewClient builds a LINE client from configuration.
func NewClient(cfg config.LineConfig) *Client {
	apiBase := cfg.APIBaseURL
	if apiBase == "" {
		apiBase = defaultAPIBaseURL
	}
	blobBase := cfg.BlobBaseURL
	if blobBase == "" {
		blobBase = defaultBlobBaseURL
	}
	return &Client{
		apiBaseURL:  apiBase,
		blobBaseURL: blobBase,
		accessToken: cfg.ChannelAccessToken,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

// ReplyMessage sends a single text message bound to a reply token. Tokens are
// single use and expire quickly, so there is no retry.
func (c *Client) ReplyMessage(ctx context.Context, replyToken, text string) error {
	body, err := json.Marshal(replyRequest{
		ReplyToken: replyToken,
		Messages:   []replyMessage{{Type: "text", Text: text}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal reply: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/bot/message/reply", c.apiBaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.GetLogger().Errorw("Failed to execute LINE reply request", "error", err)
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		logger.GetLogger().Warnw("LINE reply rejected",
			"statusCode", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("LINE reply API returned status: %d", resp.StatusCode)
	}

	return nil
}

// GetMessageContent downloads the binary content of a message, typically the
// slip image attached to an image event.
func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v2/bot/message/%s/content", c.blobBaseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.GetLogger().Errorw("Failed to fetch LINE message content",
			"messageID", messageID, "error", err)
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LINE content API returned status: %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty content for message %s", messageID)
	}

	return content, nil
}
