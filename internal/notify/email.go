package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const defaultFromName = "Inbox AI"

// ErrEmailRejected is returned when the provider refuses a message for good
// (bad address, unverified sender). Retrying will not help.
var ErrEmailRejected = errors.New("notify: email rejected by provider")

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is an operator email. Text is required; HTML is an optional
// alternative part. Category and Tags are passed to the provider for
// delivery analytics.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Text     string
	HTML     string
	Category string
	Tags     map[string]string
}

func (m EmailMessage) validate() error {
	switch {
	case strings.TrimSpace(m.To) == "":
		return errors.New("notify: email recipient is required")
	case strings.TrimSpace(m.Subject) == "":
		return errors.New("notify: email subject is required")
	case strings.TrimSpace(m.Text) == "":
		return errors.New("notify: email text is required")
	}
	return nil
}

// sortedTags keeps provider payloads deterministic.
func (m EmailMessage) sortedTags() []string {
	keys := make([]string, 0, len(m.Tags))
	for k := range m.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender sends through the SendGrid v3 mail API.
type SendGridSender struct {
	api    sendGridAPI
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(api sendGridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{api: api, from: mail.NewEmail(cfg.FromName, cfg.FromEmail), logger: logger}
}

// Send maps msg to a v3 mail. 4xx responses other than 429 are
// ErrEmailRejected; everything else is returned as a plain error.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.api == nil {
		return errors.New("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	resp, err := s.api.SendWithContext(ctx, s.compose(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	log := s.logger.With("to", msg.To, "category", msg.Category, "status", resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		log.Warn("sendgrid unavailable", "body", resp.Body)
		return fmt.Errorf("notify: sendgrid status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		log.Error("sendgrid rejected email", "body", resp.Body)
		return fmt.Errorf("%w: sendgrid status %d", ErrEmailRejected, resp.StatusCode)
	}
	log.Info("email sent via sendgrid", "message_id", firstHeader(resp.Headers, "X-Message-Id"))
	return nil
}

func (s *SendGridSender) compose(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(s.from)
	m.Subject = msg.Subject

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	for _, k := range msg.sortedTags() {
		p.SetCustomArg(k, msg.Tags[k])
	}
	m.AddPersonalizations(p)

	// text/plain must precede text/html
	m.AddContent(mail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}
	return m
}

func firstHeader(headers map[string][]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.Info("email delivery disabled, dropping message", "to", msg.To, "subject", msg.Subject, "category", msg.Category)
	return nil
}
