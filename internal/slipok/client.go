// Package slipok implements the client for the primary slip-verification
// service. The service receives the slip image and either confirms the
// payment with extracted data or reports a domain error code.
package slipok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/firstnattapon/24wash-backend/config"
	"github.com/firstnattapon/24wash-backend/logger"
	"github.com/shopspring/decimal"
)

// ClientInterface defines the verifier operations used by the pipeline.
type ClientInterface interface {
	CheckSlip(ctx context.Context, image []byte) (*CheckResult, error)
}

// Client calls the SlipOK HTTP API.
type Client struct {
	baseURL    string
	branchID   string
	apiKey     string
	httpClient *http.Client
}

// SlipData holds the payment facts confirmed by the verifier.
type SlipData struct {
	Amount   *decimal.Decimal `json:"amount"`
	TransRef string           `json:"transRef"`
}

// CheckResult is the decoded verifier response. Code is only meaningful when
// Success is false.
type CheckResult struct {
	Success bool      `json:"success"`
	Data    *SlipData `json:"data"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ErrorCode decodes the verifier's error code, which arrives as either a
// JSON number or a string depending on the failure class.
type ErrorCode int

func (c *ErrorCode) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*c = ErrorCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("error code is neither number nor string: %s", b)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		// Unparseable codes are treated as the unrecognized-failure class.
		*c = 0
		return nil
	}
	*c = ErrorCode(n)
	return nil
}

// NewClient builds a SlipOK client from configuration.
func NewClient(cfg config.SlipOKConfig) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		branchID: cfg.BranchID,
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// CheckSlip submits a slip image for verification. The verifier reports
// domain failures inside a non-2xx JSON body, so the body is decoded
// regardless of status; only transport-level problems return an error.
func (c *Client) CheckSlip(ctx context.Context, image []byte) (*CheckResult, error) {
	log := logger.GetLogger()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "slip.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := fw.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write image part: %w", err)
	}
	// The service expects form values as strings.
	if err := mw.WriteField("log", "true"); err != nil {
		return nil, fmt.Errorf("failed to write log field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s", c.baseURL, c.branchID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("x-authorization", c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Errorw("SlipOK request failed", "error", err)
		return nil, fmt.Errorf("slipok request: %w", err)
	}
	defer resp.Body.Close()

	var result CheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Errorw("Failed to decode SlipOK response", "error", err, "status", resp.StatusCode)
		return nil, fmt.Errorf("decode slipok response: %w", err)
	}

	// A 2xx without the success flag is still a service-reported failure.
	if resp.StatusCode != http.StatusOK {
		result.Success = false
	}

	log.Debugw("SlipOK response",
		"status", resp.StatusCode,
		"success", result.Success,
		"code", int(result.Code),
		"message", result.Message)
	return &result, nil
}
