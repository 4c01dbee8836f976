package alerting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Notifier delivers an alert message to a set of recipients.
type Notifier interface {
	Send(ctx context.Context, subject, htmlBody string, recipients []string) error
}

// MailgunNotifier sends mail through the Mailgun HTTP API.
type MailgunNotifier struct {
	apiKey  string
	domain  string
	from    string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewMailgunNotifier constructs a Mailgun-backed notifier.
func NewMailgunNotifier(apiKey, domain, from, baseURL string, timeout time.Duration, logger zerolog.Logger) *MailgunNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.mailgun.net/v3"
	}
	if from == "" {
		from = "do-not-reply@" + domain
	}

	return &MailgunNotifier{
		apiKey:  apiKey,
		domain:  domain,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "alert_mailgun").Logger(),
	}
}

// Send posts one message to the Mailgun messages endpoint.
func (n *MailgunNotifier) Send(ctx context.Context, subject, htmlBody string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	form := url.Values{}
	form.Set("from", n.from)
	form.Set("to", strings.Join(recipients, ","))
	form.Set("subject", subject)
	form.Set("html", htmlBody)

	endpoint := fmt.Sprintf("%s/%s/messages", n.baseURL, n.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create mailgun request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mailgun request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mailgun returned status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("subject", subject).
		Str("message_id", gjson.GetBytes(body, "id").String()).
		Int("recipients", len(recipients)).
		Msg("alert mail sent")
	return nil
}

var _ Notifier = (*MailgunNotifier)(nil)
