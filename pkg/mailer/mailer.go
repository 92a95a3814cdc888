// Package mailer delivers transactional email through the SendGrid v3 API.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dstarsfitness/dstars-backend/pkg/config"
	"github.com/dstarsfitness/dstars-backend/pkg/logger"
)

const (
	sendEndpoint   = "https://api.sendgrid.com/v3/mail/send"
	requestTimeout = 10 * time.Second
)

// Message is a single transactional email.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

// Mailer is the delivery surface used by the services.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Client posts messages to SendGrid.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	fromEmail  string
	fromName   string
}

// New constructs a SendGrid-backed mailer.
func New(cfg config.MailConfig) (*Client, error) {
	if strings.TrimSpace(cfg.SendgridAPIKey) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("mail from address is required")
	}
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		endpoint:   sendEndpoint,
		apiKey:     cfg.SendgridAPIKey,
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
	}, nil
}

type sgAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sgContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sgPersonalization struct {
	To []sgAddress `json:"to"`
}

type sgPayload struct {
	Personalizations []sgPersonalization `json:"personalizations"`
	From             sgAddress           `json:"from"`
	Subject          string              `json:"subject"`
	Content          []sgContent         `json:"content"`
}

// Send posts the message to the SendGrid send endpoint.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient is required")
	}

	content := make([]sgContent, 0, 2)
	if msg.PlainText != "" {
		content = append(content, sgContent{Type: "text/plain", Value: msg.PlainText})
	}
	if msg.HTML != "" {
		content = append(content, sgContent{Type: "text/html", Value: msg.HTML})
	}
	if len(content) == 0 {
		return fmt.Errorf("message body is required")
	}

	payload := sgPayload{
		Personalizations: []sgPersonalization{{To: []sgAddress{{Email: msg.To, Name: msg.ToName}}}},
		From:             sgAddress{Email: c.fromEmail, Name: c.fromName},
		Subject:          msg.Subject,
		Content:          content,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if len(detail) > 0 {
			return fmt.Errorf("sendgrid send failed: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		}
		return fmt.Errorf("sendgrid send failed: %s", resp.Status)
	}

	return nil
}

// DevMailer logs messages instead of delivering them. Used when no API key
// is configured.
type DevMailer struct {
	logg *logger.Logger
}

// NewDev returns a mailer that only logs.
func NewDev(logg *logger.Logger) *DevMailer {
	return &DevMailer{logg: logg}
}

// Send logs the message metadata and drops the body.
func (d *DevMailer) Send(ctx context.Context, msg Message) error {
	if d.logg != nil {
		ctx = d.logg.WithFields(ctx, map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		})
		d.logg.Info(ctx, "dev mailer: message suppressed")
	}
	return nil
}
