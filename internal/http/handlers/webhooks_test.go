package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/whatsapp"
	"github.com/wolfman30/inbox-ai-platform/internal/ingest"
)

type recordingIngestor struct {
	mu      sync.Mutex
	calls   []string
	channel []channels.ChannelType
	outcome ingest.Outcome
}

func (r *recordingIngestor) IngestInbound(_ context.Context, orgID string, channel channels.ChannelType, raw []byte) ingest.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, orgID+":"+string(raw))
	r.channel = append(r.channel, channel)
	return ingest.Result{Outcome: r.outcome}
}

type stubBridge struct{}

func (stubBridge) Start(_ context.Context, orgID string) (*whatsapp.Session, error) {
	return &whatsapp.Session{OrgID: orgID, Status: whatsapp.StatusQR, QRCode: "qr-data"}, nil
}
func (stubBridge) Stop(context.Context, string) error { return nil }
func (stubBridge) Status(_ context.Context, orgID string) (*whatsapp.Session, error) {
	return &whatsapp.Session{OrgID: orgID, Status: whatsapp.StatusReady, PhoneNumber: "15550001111"}, nil
}
func (stubBridge) Send(context.Context, string, string, string) (string, error) { return "wa-1", nil }

type webhookFixture struct {
	router   http.Handler
	conns    *channels.MemoryConnectionStore
	ingestor *recordingIngestor
	sessions *whatsapp.SessionManager
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	conns := channels.NewMemoryConnectionStore()
	err := conns.Save(context.Background(), &channels.Connection{
		OrganizationID: "org-1",
		ChannelType:    channels.ChannelTelegram,
		Credentials:    channels.Credentials{BotToken: "token", WebhookSecret: "s3cret"},
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("save connection: %v", err)
	}
	ingestor := &recordingIngestor{outcome: ingest.OutcomeStored}
	sessions := whatsapp.NewSessionManager(stubBridge{}, nil)
	h := NewWebhookHandler(WebhookConfig{
		Connections:  conns,
		Ingestor:     ingestor,
		Sessions:     sessions,
		BridgeSecret: "bridge-secret",
	})
	r := chi.NewRouter()
	r.Post("/webhooks/telegram/{orgID}", h.Telegram)
	r.Post("/webhooks/whatsapp/{orgID}/messages", h.WhatsAppMessage)
	r.Post("/webhooks/whatsapp/{orgID}/status", h.WhatsAppStatus)
	return &webhookFixture{router: r, conns: conns, ingestor: ingestor, sessions: sessions}
}

func (f *webhookFixture) post(path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestTelegramWebhookAuthorization(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		secret string
		want   int
	}{
		{name: "unknown org", path: "/webhooks/telegram/org-2", secret: "s3cret", want: http.StatusNotFound},
		{name: "missing secret", path: "/webhooks/telegram/org-1", secret: "", want: http.StatusForbidden},
		{name: "wrong secret", path: "/webhooks/telegram/org-1", secret: "nope", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newWebhookFixture(t)
			rec := f.post(tc.path, `{"update_id":1}`, map[string]string{telegramSecretHeader: tc.secret})
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
			if len(f.ingestor.calls) != 0 {
				t.Fatalf("expected no ingestion, got %d calls", len(f.ingestor.calls))
			}
		})
	}
}

func TestTelegramWebhookInactiveConnection(t *testing.T) {
	f := newWebhookFixture(t)
	if err := f.conns.SetActive(context.Background(), "org-1", channels.ChannelTelegram, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	rec := f.post("/webhooks/telegram/org-1", `{}`, map[string]string{telegramSecretHeader: "s3cret"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestTelegramWebhookAcknowledgesEveryOutcome(t *testing.T) {
	for _, outcome := range []ingest.Outcome{ingest.OutcomeStored, ingest.OutcomeInvalid, ingest.OutcomeFailed} {
		t.Run(string(outcome), func(t *testing.T) {
			f := newWebhookFixture(t)
			f.ingestor.outcome = outcome
			rec := f.post("/webhooks/telegram/org-1", `{"update_id":7}`, map[string]string{telegramSecretHeader: "s3cret"})
			if rec.Code != http.StatusOK {
				t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
			}
			if got := rec.Body.String(); got != "{\"ok\":true}\n" {
				t.Fatalf("unexpected body %q", got)
			}
			if len(f.ingestor.calls) != 1 || f.ingestor.calls[0] != `org-1:{"update_id":7}` {
				t.Fatalf("unexpected ingest calls %v", f.ingestor.calls)
			}
			if f.ingestor.channel[0] != channels.ChannelTelegram {
				t.Fatalf("expected telegram channel, got %s", f.ingestor.channel[0])
			}
		})
	}
}

func TestWhatsAppCallbacksRequireBridgeSecret(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.post("/webhooks/whatsapp/org-1/messages", `{}`, map[string]string{"Authorization": "Bearer wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	rec = f.post("/webhooks/whatsapp/org-1/status", `{"status":"ready"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestWhatsAppMessageDeliveredToHooks(t *testing.T) {
	f := newWebhookFixture(t)
	var got []string
	f.sessions.OnMessage(func(_ context.Context, orgID string, raw []byte) {
		got = append(got, orgID+":"+string(raw))
	})
	rec := f.post("/webhooks/whatsapp/org-1/messages", `{"id":"m1"}`, map[string]string{"Authorization": "Bearer bridge-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if len(got) != 1 || got[0] != `org-1:{"id":"m1"}` {
		t.Fatalf("unexpected deliveries %v", got)
	}
}

func TestWhatsAppStatusUpdatesRegistry(t *testing.T) {
	f := newWebhookFixture(t)
	auth := map[string]string{"Authorization": "Bearer bridge-secret"}

	rec := f.post("/webhooks/whatsapp/org-1/status", `{"status":"ready","phoneNumber":"15550001111"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	session, ok := f.sessions.Session("org-1")
	if !ok || session.Status != whatsapp.StatusReady || session.PhoneNumber != "15550001111" {
		t.Fatalf("unexpected session %+v", session)
	}

	for _, body := range []string{`{"status":"sleeping"}`, `{}`, `not json`} {
		rec = f.post("/webhooks/whatsapp/org-1/status", body, auth)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected status %d, got %d", body, http.StatusBadRequest, rec.Code)
		}
	}
}
