package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/pkg/line"
	"github.com/firstnattapon/24wash-backend/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const signatureHeader = "X-Line-Signature"

// EngineInterface defines the decision operations used by the webhook.
type EngineInterface interface {
	ProcessText(ctx context.Context, text string) *types.DecisionResult
	ProcessImage(ctx context.Context, image []byte) *types.DecisionResult
}

// webhookPayload mirrors the LINE webhook request body.
type webhookPayload struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type       string          `json:"type"`
	ReplyToken string          `json:"replyToken"`
	Message    *webhookMessage `json:"message"`
}

type webhookMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// WebhookHandler receives LINE webhook events, authenticates them, and hands
// text and image messages to the decision engine.
type WebhookHandler struct {
	channelSecret []byte
	lineClient    line.ClientInterface
	engine        EngineInterface
	log           *zap.SugaredLogger
}

func NewWebhookHandler(channelSecret string, lineClient line.ClientInterface, eng EngineInterface) *WebhookHandler {
	return &WebhookHandler{
		channelSecret: []byte(channelSecret),
		lineClient:    lineClient,
		engine:        eng,
		log:           logger.GetLogger().Named("webhook"),
	}
}

// HandleWebhook processes one webhook delivery. Once the signature checks
// out the handler always answers 200: LINE retries non-200 deliveries, and a
// retried event would re-run payment decisions that already committed.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Warnw("Failed to read webhook body", "error", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if !h.validSignature(body, c.GetHeader(signatureHeader)) {
		h.log.Warnw("Webhook signature mismatch", "clientIP", c.ClientIP())
		c.Status(http.StatusUnauthorized)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.log.Warnw("Malformed webhook payload", "error", err)
		// authenticated but unparseable; do not invite a retry
		c.Status(http.StatusOK)
		return
	}

	for _, event := range payload.Events {
		h.handleEvent(c.Request.Context(), event)
	}

	c.Status(http.StatusOK)
}

// validSignature checks the HMAC-SHA256 signature LINE computes over the raw
// request body with the channel secret.
func (h *WebhookHandler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, h.channelSecret)
	mac.Write(body)
	return hmac.Equal(decoded, mac.Sum(nil))
}

func (h *WebhookHandler) handleEvent(ctx context.Context, event webhookEvent) {
	if event.Type != "message" || event.Message == nil {
		return
	}

	switch event.Message.Type {
	case "text":
		h.handleText(ctx, event.ReplyToken, event.Message.Text)
	case "image":
		h.handleImage(ctx, event.ReplyToken, event.Message.ID)
	default:
		// stickers, video, location: not addressed to the engine
	}
}

func (h *WebhookHandler) handleText(ctx context.Context, replyToken, text string) {
	result := h.engine.ProcessText(ctx, text)
	if result == nil {
		return
	}
	h.reply(ctx, replyToken, result.Reply)
}

func (h *WebhookHandler) handleImage(ctx context.Context, replyToken, messageID string) {
	content, err := h.lineClient.GetMessageContent(ctx, messageID)
	if err != nil {
		h.log.Errorw("Failed to download message content",
			"messageID", messageID, "error", err)
		return
	}

	if !isImage(content) {
		h.log.Warnw("Message content is not an image",
			"messageID", messageID, "detected", mimetype.Detect(content).String())
		return
	}

	result := h.engine.ProcessImage(ctx, content)
	if result == nil {
		return
	}
	h.reply(ctx, replyToken, result.Reply)
}

func (h *WebhookHandler) reply(ctx context.Context, replyToken, text string) {
	if text == "" || replyToken == "" {
		return
	}
	if err := h.lineClient.ReplyMessage(ctx, replyToken, text); err != nil {
		h.log.Errorw("Failed to send reply", "error", err)
	}
}

func isImage(content []byte) bool {
	return strings.HasPrefix(mimetype.Detect(content).String(), "image/")
}
