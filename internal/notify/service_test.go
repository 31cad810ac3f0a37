package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/inbox-ai-platform/internal/events"
)

type mockEmailSender struct {
	sent    []EmailMessage
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.callErr != nil {
		return m.callErr
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockDirectory struct {
	contacts map[string]*OrgContact
	err      error
}

func (m *mockDirectory) Owner(ctx context.Context, orgID string) (*OrgContact, error) {
	if m.err != nil {
		return nil, m.err
	}
	if c, ok := m.contacts[orgID]; ok {
		return c, nil
	}
	return nil, ErrOwnerNotFound
}

func quotaEvent(org string) events.QuotaExceededV1 {
	return events.QuotaExceededV1{OrgID: org, Channel: "telegram", ExternalChatID: "42", Current: 50, Limit: 50, OccurredAt: time.Now()}
}

func TestNotifyQuotaExceeded_SendsOncePerWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	email := &mockEmailSender{}
	dir := &mockDirectory{contacts: map[string]*OrgContact{
		"org-1": {OrgID: "org-1", OrgName: "Acme", OwnerEmail: "owner@acme.test", OwnerName: "Dana"},
	}}
	svc := NewService(email, dir, NewRedisThrottle(client), nil)
	ctx := context.Background()

	if err := svc.NotifyQuotaExceeded(ctx, quotaEvent("org-1")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := svc.NotifyQuotaExceeded(ctx, quotaEvent("org-1")); err != nil {
		t.Fatalf("notify again: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one email inside the window, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "owner@acme.test" || !strings.Contains(msg.Subject, "Acme") || !strings.Contains(msg.Text, "50 dialogs") {
		t.Fatalf("unexpected email %+v", msg)
	}
	if msg.Category != "quota_exceeded" || msg.Tags["org_id"] != "org-1" || !strings.Contains(msg.HTML, "<strong>50</strong>") {
		t.Fatalf("unexpected email metadata %+v", msg)
	}

	mr.FastForward(25 * time.Hour)
	if err := svc.NotifyQuotaExceeded(ctx, quotaEvent("org-1")); err != nil {
		t.Fatalf("notify after window: %v", err)
	}
	if len(email.sent) != 2 {
		t.Fatalf("expected a second email after the window, got %d", len(email.sent))
	}
}

func TestNotifyQuotaExceeded_NoOwnerIsNotAnError(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, &mockDirectory{}, NewMemoryThrottle(), nil)

	if err := svc.NotifyQuotaExceeded(context.Background(), quotaEvent("org-x")); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatal("expected no email without an owner")
	}
}

func TestNotifyQuotaExceeded_PropagatesErrors(t *testing.T) {
	dir := &mockDirectory{contacts: map[string]*OrgContact{"org-1": {OwnerEmail: "o@x.test"}}}
	svc := NewService(&mockEmailSender{callErr: errors.New("smtp down")}, dir, nil, nil)
	if err := svc.NotifyQuotaExceeded(context.Background(), quotaEvent("org-1")); err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected send error, got %v", err)
	}

	svc = NewService(&mockEmailSender{}, &mockDirectory{err: errors.New("db down")}, nil, nil)
	if err := svc.NotifyQuotaExceeded(context.Background(), quotaEvent("org-1")); err == nil {
		t.Fatal("expected directory error")
	}
}

func TestMemoryThrottle(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	th := NewMemoryThrottle()
	th.now = func() time.Time { return now }

	if ok, _ := th.Allow(context.Background(), "k", time.Hour); !ok {
		t.Fatal("first call should be allowed")
	}
	if ok, _ := th.Allow(context.Background(), "k", time.Hour); ok {
		t.Fatal("second call inside window should be throttled")
	}
	now = now.Add(time.Hour)
	if ok, _ := th.Allow(context.Background(), "k", time.Hour); !ok {
		t.Fatal("call after window should be allowed")
	}
}

func TestSQLDirectory_Owner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	dir := NewSQLDirectory(db)

	mock.ExpectQuery("FROM organizations").WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner_email", "owner_name"}).AddRow("Acme", "owner@acme.test", nil))
	contact, err := dir.Owner(context.Background(), "org-1")
	if err != nil {
		t.Fatalf("owner: %v", err)
	}
	if contact.OrgName != "Acme" || contact.OwnerEmail != "owner@acme.test" {
		t.Fatalf("unexpected contact %+v", contact)
	}

	mock.ExpectQuery("FROM organizations").WithArgs("org-2").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner_email", "owner_name"}).AddRow("Beta", nil, nil))
	if _, err := dir.Owner(context.Background(), "org-2"); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound for missing email, got %v", err)
	}

	mock.ExpectQuery("FROM organizations").WithArgs("org-3").
		WillReturnRows(sqlmock.NewRows([]string{"name", "owner_email", "owner_name"}))
	if _, err := dir.Owner(context.Background(), "org-3"); !errors.Is(err, ErrOwnerNotFound) {
		t.Fatalf("expected ErrOwnerNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

type mockSES struct {
	input *sesv2.SendEmailInput
}

func (m *mockSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	api := &mockSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "noreply@inbox.test"}, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "o@x.test", Subject: "Hi", Text: "text", Category: "quota_exceeded", Tags: map[string]string{"org_id": "org-1"}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "Inbox AI <noreply@inbox.test>" {
		t.Fatalf("unexpected from %q", got)
	}
	if api.input.Content.Simple.Body.Html != nil {
		t.Fatal("expected no html part for text-only email")
	}
	if tags := api.input.EmailTags; len(tags) != 2 || aws.ToString(tags[0].Value) != "quota_exceeded" || aws.ToString(tags[1].Name) != "org_id" {
		t.Fatalf("unexpected email tags %+v", tags)
	}
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender without client")
	}
}
