package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPRelay posts messages to a relay endpoint authenticated by an API key.
type HTTPRelay struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPRelay returns a relay posting to url.
func NewHTTPRelay(url, apiKey string) *HTTPRelay {
	return &HTTPRelay{
		url:    url,
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Payload is the relay's wire format. The inbound receiver accepts the
// same shape.
type Payload struct {
	RecipientWalletAddress string `json:"recipientWalletAddress" validate:"required"`
	PinCode                string `json:"pinCode,omitempty"`
	Subject                string `json:"subject" validate:"required"`
	Body                   string `json:"body" validate:"required"`
	FromName               string `json:"fromName,omitempty"`
}

type response struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Deliver posts msg and reports the relay's error message on failure.
func (r *HTTPRelay) Deliver(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrInvalidRecipient
	}

	fromName := msg.FromName
	if fromName == "" {
		fromName = msg.From
	}
	data, err := json.Marshal(Payload{
		RecipientWalletAddress: msg.To,
		PinCode:                msg.PinCode,
		Subject:                msg.Subject,
		Body:                   msg.Text,
		FromName:               fromName,
	})
	if err != nil {
		return fmt.Errorf("encoding relay payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", r.apiKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling relay: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading relay response: %w", err)
	}

	var out response
	_ = json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reason := out.Error
		if reason == "" {
			reason = strings.TrimSpace(string(body))
		}
		return fmt.Errorf("relay returned %d: %s", resp.StatusCode, reason)
	}

	logrus.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("message relayed")
	return nil
}
