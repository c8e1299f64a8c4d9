package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "incident-radar"
)

// WebhookConfig configures delivery to a Mattermost or Slack compatible incoming webhook.
type WebhookConfig struct {
	URL      string
	Username string
	IconURL  string
	Timeout  time.Duration
}

// WebhookSender posts alerts to an incoming webhook.
type WebhookSender struct {
	config     WebhookConfig
	httpClient *http.Client
}

// NewWebhookSender creates a WebhookSender.
func NewWebhookSender(config WebhookConfig) *WebhookSender {
	if config.Username == "" {
		config.Username = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &WebhookSender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type webhookPayload struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	IconURL  string `json:"icon_url,omitempty"`
}

// Send posts one message.
func (s *WebhookSender) Send(ctx context.Context, subject, body string) error {
	if s.config.URL == "" {
		return &SendError{Message: "webhook URL is empty"}
	}

	payload := webhookPayload{
		Text:     fmt.Sprintf("### %s\n\n%s", subject, body),
		Username: s.config.Username,
		IconURL:  s.config.IconURL,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &SendError{Message: fmt.Sprintf("send request: %v", err), Retryable: true}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *WebhookSender) handleResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		slog.Debug("alert delivered", "webhook", maskURL(s.config.URL))
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &SendError{Code: resp.StatusCode, Message: string(body), Retryable: true}
	default:
		return &SendError{Code: resp.StatusCode, Message: string(body)}
	}
}

// maskURL hides the webhook secret for logging.
func maskURL(url string) string {
	if len(url) > 40 {
		return url[:20] + "..." + url[len(url)-10:]
	}
	return url
}

// SendError is a failed delivery. Retryable errors are worth another attempt.
type SendError struct {
	Code      int
	Message   string
	Retryable bool
}

func (e *SendError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("webhook error: %s", e.Message)
}
