// Package webhook notifies an external endpoint about server lifecycle events.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const signatureHeader = "X-Webhook-Signature"

// Sender handles HTTP dispatch to webhook endpoints.
type Sender struct {
	client *http.Client
	logger *zap.Logger
}

// NewSender creates a new webhook sender with a configured HTTP client.
func NewSender(timeout time.Duration, logger *zap.Logger) *Sender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		client: &http.Client{Timeout: timeout},
		logger: logger.Named("webhook"),
	}
}

// Request represents a webhook request to be sent.
type Request struct {
	URL          string
	Method       string
	Payload      any
	SharedSecret string
}

// Response represents the result of sending a webhook.
type Response struct {
	StatusCode int
	Error      error
	Body       []byte
}

// ReadyEvent is the payload announcing that the server accepts requests.
type ReadyEvent struct {
	Event     string    `json:"event"`
	URL       string    `json:"url"`
	Mode      string    `json:"mode"`
	SSR       bool      `json:"ssr"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReadyEvent builds a ReadyEvent stamped with the current time.
func NewReadyEvent(url, mode string, ssr bool) ReadyEvent {
	return ReadyEvent{Event: "ready", URL: url, Mode: mode, SSR: ssr, Timestamp: time.Now().UTC()}
}

// Send dispatches a webhook request and returns the response.
func (s *Sender) Send(ctx context.Context, req Request) Response {
	if req.Method == "" {
		req.Method = http.MethodPost
	}

	log := s.logger.With(zap.String("url", req.URL), zap.String("method", req.Method))
	log.Debug("Sending webhook")

	payloadBytes, err := json.Marshal(req.Payload)
	if err != nil {
		log.Warn("Error marshaling payload", zap.Error(err))
		return Response{Error: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(payloadBytes))
	if err != nil {
		log.Warn("Error creating request", zap.Error(err))
		return Response{Error: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.SharedSecret != "" {
		httpReq.Header.Set(signatureHeader, generateSignature(payloadBytes, req.SharedSecret))
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		log.Warn("Error sending webhook", zap.Error(err))
		return Response{Error: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		log.Warn("Error reading response", zap.Error(err))
		return Response{StatusCode: resp.StatusCode, Error: err}
	}

	log.Debug("Webhook sent", zap.Int("status", resp.StatusCode))
	if resp.StatusCode >= 400 {
		log.Warn("Error response from webhook", zap.Int("status", resp.StatusCode), zap.ByteString("body", respBody))
	}

	return Response{StatusCode: resp.StatusCode, Body: respBody}
}

// generateSignature returns the hex HMAC-SHA256 of payload, prefixed with "sha256=".
func generateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
