package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/ai"
	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/inbox-ai-platform/internal/http/middleware"
	"github.com/wolfman30/inbox-ai-platform/internal/ingest"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/messaging"
	"github.com/wolfman30/inbox-ai-platform/internal/quota"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const testSecret = "dashboard-secret"

type noopIngestor struct{}

func (noopIngestor) IngestInbound(context.Context, string, channels.ChannelType, []byte) ingest.Result {
	return ingest.Result{Outcome: ingest.OutcomeStored}
}

type noopReplies struct{}

func (noopReplies) SendReply(context.Context, messaging.Reply) (*messages.Message, error) {
	return &messages.Message{ID: "m1"}, nil
}

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	logger := logging.Default()
	conns := channels.NewMemoryConnectionStore()
	convRepo := conversations.NewInMemoryRepository()
	convService := conversations.NewService(convRepo, quota.NewGuard(quota.NewMemorySubscriptionStore(), convRepo, 0), logger)

	return New(&Config{
		Logger: logger,
		Webhooks: handlers.NewWebhookHandler(handlers.WebhookConfig{
			Connections: conns,
			Ingestor:    noopIngestor{},
			Logger:      logger,
		}),
		Dashboard: handlers.NewDashboardHandler(handlers.DashboardConfig{
			Conversations: convService,
			Settings:      ai.NewMemorySettingsStore(),
			Replies:       noopReplies{},
			Logger:        logger,
		}),
		Health:             handlers.Health(nil),
		MetricsHandler:     http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		DashboardJWTSecret: testSecret,
		WebhookLimiter:     limiter,
	})
}

func dashboardToken(t *testing.T, orgID string) string {
	t.Helper()
	claims := httpmiddleware.DashboardClaims{
		OrgID:            orgID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serve(router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouterPublicEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)
	if rec := serve(router, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("health: expected %d, got %d", http.StatusOK, rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Fatalf("metrics: unexpected %d %q", rec.Code, rec.Body.String())
	}
	if rec := serve(router, http.MethodPost, "/webhooks/telegram/org-1", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("telegram webhook without connection: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/webhooks/whatsapp/org-1/messages", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("whatsapp webhook without sessions: expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestRouterDashboardRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/conversations/c1/ai"},
		{http.MethodPatch, "/api/conversations/c1/ai"},
		{http.MethodPost, "/api/conversations/c1/messages"},
		{http.MethodPost, "/api/conversations/c1/read"},
		{http.MethodGet, "/api/whatsapp/session"},
		{http.MethodPost, "/api/telegram/connect"},
	}
	for _, p := range paths {
		if rec := serve(router, p.method, p.path, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected %d, got %d", p.method, p.path, http.StatusUnauthorized, rec.Code)
		}
	}
}

func TestRouterDashboardRoutesReachHandlers(t *testing.T) {
	router := newTestRouter(t, nil)
	token := dashboardToken(t, "org-1")

	if rec := serve(router, http.MethodGet, "/api/conversations/missing/ai", token); rec.Code != http.StatusNotFound {
		t.Fatalf("expected %d for unknown conversation, got %d", http.StatusNotFound, rec.Code)
	}
	if rec := serve(router, http.MethodGet, "/api/whatsapp/session", token); rec.Code != http.StatusNotFound {
		t.Fatalf("expected %d without whatsapp, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestRouterRateLimitsWebhooksPerOrg(t *testing.T) {
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(0, 1))

	if rec := serve(router, http.MethodPost, "/webhooks/telegram/org-1", ""); rec.Code == http.StatusTooManyRequests {
		t.Fatalf("first call must not be limited")
	}
	if rec := serve(router, http.MethodPost, "/webhooks/telegram/org-1", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected %d, got %d", http.StatusTooManyRequests, rec.Code)
	}
	if rec := serve(router, http.MethodPost, "/webhooks/telegram/org-2", ""); rec.Code == http.StatusTooManyRequests {
		t.Fatalf("other org must have its own bucket")
	}
}

func TestWebhookKey(t *testing.T) {
	cases := map[string]string{
		"/webhooks/telegram/org-1":          "org:org-1",
		"/webhooks/whatsapp/org-2/messages": "org:org-2",
		"/webhooks/telegram":                "192.0.2.1:1234",
	}
	for path, want := range cases {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		if got := webhookKey(req); got != want {
			t.Fatalf("%s: expected %q, got %q", path, want, got)
		}
	}
}
