package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/firstnattapon/24wash-backend/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-channel-secret"

func init() {
	logger.IsTest = true
	gin.SetMode(gin.TestMode)
}

type fakeEngine struct {
	textResult  *types.DecisionResult
	imageResult *types.DecisionResult
	texts       []string
	images      [][]byte
}

func (e *fakeEngine) ProcessText(_ context.Context, text string) *types.DecisionResult {
	e.texts = append(e.texts, text)
	return e.textResult
}

func (e *fakeEngine) ProcessImage(_ context.Context, image []byte) *types.DecisionResult {
	e.images = append(e.images, image)
	return e.imageResult
}

type fakeLineClient struct {
	content    []byte
	contentErr error
	replies    []string
	replyErr   error
}

func (c *fakeLineClient) ReplyMessage(_ context.Context, _, text string) error {
	c.replies = append(c.replies, text)
	return c.replyErr
}

func (c *fakeLineClient) GetMessageContent(context.Context, string) ([]byte, error) {
	return c.content, c.contentErr
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.POST("/webhook", h.HandleWebhook)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(signatureHeader, signature)
	}
	r.ServeHTTP(w, req)
	return w
}

// tiny valid PNG header plus IHDR bytes, enough for mimetype sniffing
var pngBytes = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A,
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52,
}

func TestHandleWebhook_RejectsBadSignature(t *testing.T) {
	h := NewWebhookHandler(testSecret, &fakeLineClient{}, &fakeEngine{})

	body := []byte(`{"events":[]}`)
	w := postWebhook(t, h, body, "not-a-signature")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(t, h, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// valid signature over a different body
	w = postWebhook(t, h, body, sign([]byte("other")))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleWebhook_TextEventRepliesAndReturns200(t *testing.T) {
	client := &fakeLineClient{}
	eng := &fakeEngine{textResult: &types.DecisionResult{Reply: "✅ รหัสถูกต้อง!"}}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-1","message":{"id":"m1","type":"text","text":"12345-1"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"12345-1"}, eng.texts)
	assert.Equal(t, []string{"✅ รหัสถูกต้อง!"}, client.replies)
}

func TestHandleWebhook_ChatterGetsNoReply(t *testing.T) {
	client := &fakeLineClient{}
	eng := &fakeEngine{textResult: nil}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-1","message":{"id":"m1","type":"text","text":"hello"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, client.replies)
}

func TestHandleWebhook_ImageEvent(t *testing.T) {
	client := &fakeLineClient{content: pngBytes}
	eng := &fakeEngine{imageResult: &types.DecisionResult{Reply: "✅ ได้รับยอดเงินเรียบร้อย"}}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-2","message":{"id":"m2","type":"image"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, eng.images, 1)
	assert.Equal(t, pngBytes, eng.images[0])
	assert.Equal(t, []string{"✅ ได้รับยอดเงินเรียบร้อย"}, client.replies)
}

func TestHandleWebhook_NonImageContentSkipsEngine(t *testing.T) {
	client := &fakeLineClient{content: []byte("%PDF-1.4 not a slip")}
	eng := &fakeEngine{imageResult: &types.DecisionResult{Reply: "should not happen"}}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-2","message":{"id":"m2","type":"image"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, eng.images)
	assert.Empty(t, client.replies)
}

func TestHandleWebhook_ContentDownloadFailureStill200(t *testing.T) {
	client := &fakeLineClient{contentErr: errors.New("blob API unreachable")}
	eng := &fakeEngine{}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-2","message":{"id":"m2","type":"image"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, eng.images)
}

func TestHandleWebhook_IgnoresNonMessageEvents(t *testing.T) {
	client := &fakeLineClient{}
	eng := &fakeEngine{}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"follow","replyToken":"rt-3"},{"type":"message","replyToken":"rt-4","message":{"id":"m3","type":"sticker"}}]}`)
	w := postWebhook(t, h, body, sign(body))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, eng.texts)
	assert.Empty(t, eng.images)
}

func TestHandleWebhook_MalformedPayloadStill200(t *testing.T) {
	h := NewWebhookHandler(testSecret, &fakeLineClient{}, &fakeEngine{})

	body := []byte(`{"events":`)
	w := postWebhook(t, h, body, sign(body))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleWebhook_ReplyFailureDoesNotFailDelivery(t *testing.T) {
	client := &fakeLineClient{replyErr: errors.New("token expired")}
	eng := &fakeEngine{textResult: &types.DecisionResult{Reply: "reply"}}
	h := NewWebhookHandler(testSecret, client, eng)

	body := []byte(`{"events":[{"type":"message","replyToken":"rt-1","message":{"id":"m1","type":"text","text":"12345-1"}}]}`)
	w := postWebhook(t, h, body, sign(body))
	assert.Equal(t, http.StatusOK, w.Code)
}
