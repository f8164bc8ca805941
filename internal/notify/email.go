package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// DefaultResendEndpoint is the Resend transactional email API.
const DefaultResendEndpoint = "https://api.resend.com/emails"

// Transport selects how EmailNotifier delivers mail.
type Transport string

const (
	TransportResend Transport = "resend"
	TransportSMTP   Transport = "smtp"
)

// EmailConfig configures EmailNotifier.
type EmailConfig struct {
	Transport      Transport
	From           string
	ResendAPIKey   string
	ResendEndpoint string
	SMTPHost       string
	SMTPPort       int
	SMTPUser       string
	SMTPPass       string
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier emails the target student when a swap is requested.
type EmailNotifier struct {
	cfg      EmailConfig
	client   *http.Client
	sendMail sendMailFunc
}

// NewEmailNotifier validates cfg and constructs an EmailNotifier.
func NewEmailNotifier(cfg EmailConfig, client *http.Client) (*EmailNotifier, error) {
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("%w: sender address is required", ErrNotConfigured)
	}
	switch cfg.Transport {
	case TransportResend:
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("%w: resend api key is required", ErrNotConfigured)
		}
		if cfg.ResendEndpoint == "" {
			cfg.ResendEndpoint = DefaultResendEndpoint
		}
	case TransportSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("%w: smtp host is required", ErrNotConfigured)
		}
		if cfg.SMTPPort == 0 {
			cfg.SMTPPort = 587
		}
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrNotConfigured, cfg.Transport)
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &EmailNotifier{cfg: cfg, client: client, sendMail: smtp.SendMail}, nil
}

func (n *EmailNotifier) NotifySwapRequestCreated(ctx context.Context, event SwapRequestCreated) error {
	if event.TargetEmail == "" {
		return fmt.Errorf("notify: swap request %s has no recipient", event.RequestID)
	}
	subject, body := renderSwapRequest(event)
	if n.cfg.Transport == TransportSMTP {
		return n.sendViaSMTP(event.TargetEmail, subject, body)
	}
	return n.sendViaResend(ctx, event.TargetEmail, subject, body)
}

func renderSwapRequest(event SwapRequestCreated) (string, string) {
	subject := "New supervision swap request"
	body := fmt.Sprintf(
		`<p>Hi %s,</p>`+
			`<p>%s would like to swap supervision slots with you for <strong>%s</strong>.</p>`+
			`<p>Open the scheduler to accept or reject the request.</p>`,
		html.EscapeString(event.TargetName),
		html.EscapeString(event.RequesterName),
		html.EscapeString(event.SessionTitle),
	)
	return subject, body
}

func (n *EmailNotifier) sendViaResend(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(resendRequest{
		From:    n.cfg.From,
		To:      []string{to},
		Subject: subject,
		HTML:    body,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.ResendEndpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.cfg.ResendAPIKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("resend API error: status %d", resp.StatusCode)
	}
	return nil
}

func (n *EmailNotifier) sendViaSMTP(to, subject, body string) error {
	addr := net.JoinHostPort(n.cfg.SMTPHost, strconv.Itoa(n.cfg.SMTPPort))

	msg := "From: " + n.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body

	var auth smtp.Auth
	if n.cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", n.cfg.SMTPUser, n.cfg.SMTPPass, n.cfg.SMTPHost)
	}
	if err := n.sendMail(addr, auth, n.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
