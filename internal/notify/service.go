package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/events"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const defaultQuotaWindow = 24 * time.Hour

// Service sends operator notifications.
type Service struct {
	email       EmailSender
	directory   OrgDirectory
	throttle    Throttle
	quotaWindow time.Duration
	logger      *logging.Logger
}

// NewService creates a notification service. A nil throttle sends every time.
func NewService(email EmailSender, directory OrgDirectory, throttle Throttle, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if directory == nil {
		panic("notify: org directory cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:       email,
		directory:   directory,
		throttle:    throttle,
		quotaWindow: defaultQuotaWindow,
		logger:      logger,
	}
}

// SetQuotaWindow changes how often an org is told about the quota.
func (s *Service) SetQuotaWindow(d time.Duration) {
	if d > 0 {
		s.quotaWindow = d
	}
}

// NotifyQuotaExceeded emails the org owner that new dialogs are being
// refused. At most one email per org per window.
func (s *Service) NotifyQuotaExceeded(ctx context.Context, evt events.QuotaExceededV1) error {
	log := s.logger.ForOrg(evt.OrgID)

	if s.throttle != nil {
		ok, err := s.throttle.Allow(ctx, "quota_exceeded:"+evt.OrgID, s.quotaWindow)
		if err != nil {
			log.Warn("notify: throttle unavailable, sending anyway", "error", err)
		} else if !ok {
			log.Debug("notify: quota email throttled")
			return nil
		}
	}

	owner, err := s.directory.Owner(ctx, evt.OrgID)
	if errors.Is(err, ErrOwnerNotFound) {
		log.Info("notify: no owner email on file, skipping quota notification")
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: lookup owner: %w", err)
	}

	subject := "Dialog limit reached"
	if owner.OrgName != "" {
		subject = fmt.Sprintf("%s: dialog limit reached", owner.OrgName)
	}
	text := fmt.Sprintf(`Your plan allows %d dialogs and %d are in use.

New %s chats are not being added to your inbox until the plan is upgraded
or the limit is raised. Existing conversations keep working.`, evt.Limit, evt.Current, evt.Channel)
	htmlBody := fmt.Sprintf(`<p>Your plan allows <strong>%d</strong> dialogs and <strong>%d</strong> are in use.</p>
<p>New %s chats are not being added to your inbox until the plan is upgraded
or the limit is raised. Existing conversations keep working.</p>`, evt.Limit, evt.Current, html.EscapeString(evt.Channel))

	msg := EmailMessage{
		To:       owner.OwnerEmail,
		ToName:   owner.OwnerName,
		Subject:  subject,
		Text:     text,
		HTML:     htmlBody,
		Category: "quota_exceeded",
		Tags:     map[string]string{"org_id": evt.OrgID},
	}
	if err := s.email.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send quota email: %w", err)
	}
	log.Info("notify: quota exceeded email sent", "to", owner.OwnerEmail, "current", evt.Current, "limit", evt.Limit)
	return nil
}
