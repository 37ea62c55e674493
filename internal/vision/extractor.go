// Package vision implements the AI fallback extractor: when the primary
// verifier accepts a slip as genuine without data (bypass codes), a vision
// model recovers the amount and transaction reference from the image.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const systemPrompt = "You read Thai bank transfer slip images. " +
	"Return ONLY a JSON object with exactly two fields: " +
	"\"amount\" (the transferred amount as a number) and " +
	"\"trans_ref\" (the transaction reference as a string). " +
	"Ignore any displayed account balance. " +
	"If a field cannot be read, omit it. Never output null or prose."

// ExtractorInterface defines the fallback extraction operation used by the
// verification pipeline.
type ExtractorInterface interface {
	Extract(ctx context.Context, image []byte) (*decimal.Decimal, string, error)
}

// Extractor calls an OpenAI-compatible chat-completions endpoint with the
// preprocessed slip image and a deterministic structured-output instruction.
type Extractor struct {
	cfg        config.VisionConfig
	httpClient *http.Client
}

// NewExtractor builds an Extractor from configuration. Callers must check
// cfg.Enabled() before wiring it in; an extractor without an API key is
// never constructed.
func NewExtractor(cfg config.VisionConfig) *Extractor {
	return &Extractor{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// slipFields is the strict response shape. A missing or non-numeric amount
// leaves Amount nil, which Extract treats as a hard failure.
type slipFields struct {
	Amount   *decimal.Decimal `json:"amount"`
	TransRef string           `json:"trans_ref"`
}

// Extract preprocesses the image and asks the model for the amount and
// transaction reference. The model must not guess: a response without a
// numeric amount is an error, never a default.
func (e *Extractor) Extract(ctx context.Context, image []byte) (*decimal.Decimal, string, error) {
	log := logger.GetLogger()
	rid := uuid.New().String()
	start := time.Now()

	prepped, err := Preprocess(image, e.cfg.MaxDimension, e.cfg.JPEGQuality)
	if err != nil {
		return nil, "", fmt.Errorf("preprocess slip image: %w", err)
	}
	log.Debugw("Slip image preprocessed",
		"req_id", rid, "in_bytes", len(image), "out_bytes", len(prepped))

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(prepped)

	body := map[string]any{
		"model":           e.cfg.Model,
		"temperature":     0,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": "Extract the amount and transaction reference from this transfer slip."},
				{"type": "image_url", "image_url": map[string]any{"url": dataURL}},
			}},
		},
	}

	raw, err := e.post(ctx, strings.TrimRight(e.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		log.Errorw("Vision extraction request failed",
			"req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, "", err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, "", fmt.Errorf("decode vision response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, "", fmt.Errorf("no choices in vision response")
	}

	content := stripCodeFence(cc.Choices[0].Message.Content)

	var fields slipFields
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		log.Errorw("Vision response is not valid JSON",
			"req_id", rid, "content", content)
		return nil, "", fmt.Errorf("parse vision output: %w", err)
	}
	if fields.Amount == nil {
		log.Warnw("Vision response lacks a numeric amount",
			"req_id", rid, "content", content)
		return nil, "", fmt.Errorf("vision output has no numeric amount")
	}

	log.Infow("Vision extraction succeeded",
		"req_id", rid,
		"amount", fields.Amount.String(),
		"trans_ref", fields.TransRef,
		"elapsed_ms", time.Since(start).Milliseconds())
	return fields.Amount, fields.TransRef, nil
}

func (e *Extractor) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision http error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vision response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("vision status %d: %s", resp.StatusCode, raw)
	}
	return raw, nil
}

// stripCodeFence removes surrounding markdown fences some models wrap around
// JSON output despite the structured-output instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// drop an optional language tag on the fence line
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
