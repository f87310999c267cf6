package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ResendSender delivers payloads through the Resend HTTP API.
type ResendSender struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

// NewResendSender returns a sender for baseURL (no trailing slash).
func NewResendSender(apiKey, baseURL string) *ResendSender {
	return &ResendSender{
		APIKey:  apiKey,
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text"`
}

type resendError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Send posts p to {BaseURL}/emails. Any non-2xx reply is an error carrying
// the provider's message when one is present.
func (r *ResendSender) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(resendRequest{
		From:    p.From,
		To:      []string{p.To},
		ReplyTo: p.ReplyTo,
		Subject: p.Subject,
		HTML:    p.HTML,
		Text:    p.Text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	var re resendError
	if json.Unmarshal(raw, &re) == nil && re.Message != "" {
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, re.Message)
	}
	return fmt.Errorf("resend: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
