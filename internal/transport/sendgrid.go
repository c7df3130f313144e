package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	sendgridDefaultEndpoint = "https://api.sendgrid.com"
	sendgridSendPath        = "/v3/mail/send"
)

// SendGrid implements Transport for the SendGrid v3 Mail Send API.
type SendGrid struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewSendGrid(apiKey, endpoint string, client *http.Client) *SendGrid {
	if endpoint == "" {
		endpoint = sendgridDefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SendGrid{apiKey: apiKey, endpoint: endpoint, client: client}
}

func (s *SendGrid) Name() string { return "sendgrid" }

func (s *SendGrid) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(s.buildPayload(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint+sendgridSendPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sendgrid: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendgrid: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &SendError{Provider: s.Name(), StatusCode: resp.StatusCode, Message: string(raw)}
}

// sendgridPayload matches the SendGrid v3 mail/send JSON schema.
type sendgridPayload struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridEmail             `json:"from"`
	ReplyTo          *sendgridEmail            `json:"reply_to,omitempty"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
}

type sendgridPersonalization struct {
	To         []sendgridEmail   `json:"to"`
	CustomArgs map[string]string `json:"custom_args,omitempty"`
}

type sendgridEmail struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *SendGrid) buildPayload(msg *Message) sendgridPayload {
	payload := sendgridPayload{
		Personalizations: []sendgridPersonalization{{
			To:         []sendgridEmail{{Email: msg.To}},
			CustomArgs: msg.CustomArgs,
		}},
		From:    sendgridEmail{Email: msg.From.Email, Name: msg.From.Name},
		Subject: msg.Subject,
		Content: []sendgridContent{{Type: "text/html", Value: msg.HTML}},
	}
	if msg.ReplyTo != "" {
		payload.ReplyTo = &sendgridEmail{Email: msg.ReplyTo}
	}
	return payload
}
