package handlers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/whatsapp"
	"github.com/wolfman30/inbox-ai-platform/internal/ingest"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const telegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type connectionReader interface {
	Active(ctx context.Context, orgID string, channel channels.ChannelType) (*channels.Connection, error)
}

type inboundIngestor interface {
	IngestInbound(ctx context.Context, orgID string, channel channels.ChannelType, raw []byte) ingest.Result
}

type sessionCallbacks interface {
	Deliver(ctx context.Context, orgID string, raw []byte)
	UpdateStatus(ctx context.Context, next whatsapp.Session) error
}

// WebhookHandler receives inbound traffic from Telegram and the WhatsApp bridge.
type WebhookHandler struct {
	connections  connectionReader
	ingestor     inboundIngestor
	sessions     sessionCallbacks
	bridgeSecret string
	logger       *logging.Logger
}

// WebhookConfig wires the webhook handler.
type WebhookConfig struct {
	Connections  connectionReader
	Ingestor     inboundIngestor
	Sessions     sessionCallbacks
	BridgeSecret string
	Logger       *logging.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Connections == nil {
		panic("handlers: connection reader cannot be nil")
	}
	if cfg.Ingestor == nil {
		panic("handlers: ingestor cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		connections:  cfg.Connections,
		ingestor:     cfg.Ingestor,
		sessions:     cfg.Sessions,
		bridgeSecret: cfg.BridgeSecret,
		logger:       cfg.Logger,
	}
}

// Telegram handles POST /webhooks/telegram/{orgID}. Once the secret matches,
// the update is always acknowledged so Telegram never retries it.
func (h *WebhookHandler) Telegram(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "orgID")
	log := h.logger.ForOrg(orgID)

	conn, err := h.connections.Active(r.Context(), orgID, channels.ChannelTelegram)
	if err != nil {
		if errors.Is(err, channels.ErrConnectionNotFound) {
			jsonError(w, "telegram not connected", http.StatusNotFound)
			return
		}
		log.Error("telegram webhook: load connection failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !secretsEqual(r.Header.Get(telegramSecretHeader), conn.Credentials.WebhookSecret) {
		log.Warn("telegram webhook: secret mismatch")
		jsonError(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := readBody(r)
	if err != nil {
		log.Warn("telegram webhook: unreadable body", "error", err)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	}
	res := h.ingestor.IngestInbound(context.WithoutCancel(r.Context()), orgID, channels.ChannelTelegram, body)
	log.Debug("telegram update ingested", "outcome", res.Outcome, "message_id", res.MessageID)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// WhatsAppMessage handles POST /webhooks/whatsapp/{orgID}/messages from the bridge.
func (h *WebhookHandler) WhatsAppMessage(w http.ResponseWriter, r *http.Request) {
	if !h.bridgeAuthorized(w, r) {
		return
	}
	orgID := chi.URLParam(r, "orgID")
	body, err := readBody(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.sessions.Deliver(context.WithoutCancel(r.Context()), orgID, body)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type sessionStatusRequest struct {
	Status      whatsapp.Status `json:"status" validate:"required"`
	QRCode      string          `json:"qrCode"`
	PhoneNumber string          `json:"phoneNumber"`
	PushName    string          `json:"pushname"`
	Platform    string          `json:"platform"`
}

// WhatsAppStatus handles POST /webhooks/whatsapp/{orgID}/status from the bridge.
func (h *WebhookHandler) WhatsAppStatus(w http.ResponseWriter, r *http.Request) {
	if !h.bridgeAuthorized(w, r) {
		return
	}
	orgID := chi.URLParam(r, "orgID")
	var req sessionStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	err := h.sessions.UpdateStatus(r.Context(), whatsapp.Session{
		OrgID:       orgID,
		Status:      req.Status,
		QRCode:      req.QRCode,
		PhoneNumber: req.PhoneNumber,
		PushName:    req.PushName,
		Platform:    req.Platform,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *WebhookHandler) bridgeAuthorized(w http.ResponseWriter, r *http.Request) bool {
	if h.sessions == nil {
		jsonError(w, "whatsapp not configured", http.StatusNotFound)
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if h.bridgeSecret == "" || !secretsEqual(token, h.bridgeSecret) {
		jsonError(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func secretsEqual(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
