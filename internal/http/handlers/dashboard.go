package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/ai"
	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/telegram"
	"github.com/wolfman30/inbox-ai-platform/internal/channels/whatsapp"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/messages"
	"github.com/wolfman30/inbox-ai-platform/internal/messaging"
	"github.com/wolfman30/inbox-ai-platform/internal/tenancy"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

type conversationService interface {
	Get(ctx context.Context, orgID, id string) (*conversations.Conversation, error)
	ToggleAI(ctx context.Context, orgID, id string, enabled bool) (*conversations.Conversation, error)
	MarkRead(ctx context.Context, orgID, id string) error
}

type settingsReader interface {
	Get(ctx context.Context, orgID string) (*ai.Settings, error)
}

type replySender interface {
	SendReply(ctx context.Context, reply messaging.Reply) (*messages.Message, error)
}

type sessionControl interface {
	Start(ctx context.Context, orgID string) (*whatsapp.Session, error)
	Stop(ctx context.Context, orgID string) error
	Refresh(ctx context.Context, orgID string) (*whatsapp.Session, error)
}

type telegramConnector interface {
	Connect(ctx context.Context, orgID, botToken, webhookURL string) (*channels.Connection, *telegram.BotInfo, error)
}

type connectionWriter interface {
	Save(ctx context.Context, conn *channels.Connection) error
}

// DashboardHandler serves the operator API. Every route is scoped to the org
// carried by the bearer token.
type DashboardHandler struct {
	conversations conversationService
	settings      settingsReader
	replies       replySender
	sessions      sessionControl
	telegram      telegramConnector
	connections   connectionWriter
	publicBaseURL string
	logger        *logging.Logger
}

// DashboardConfig wires the dashboard handler. Sessions and Telegram are
// optional; their routes answer 404 when unset.
type DashboardConfig struct {
	Conversations conversationService
	Settings      settingsReader
	Replies       replySender
	Sessions      sessionControl
	Telegram      telegramConnector
	Connections   connectionWriter
	PublicBaseURL string
	Logger        *logging.Logger
}

// NewDashboardHandler creates the dashboard handler.
func NewDashboardHandler(cfg DashboardConfig) *DashboardHandler {
	if cfg.Conversations == nil {
		panic("handlers: conversation service cannot be nil")
	}
	if cfg.Settings == nil {
		panic("handlers: settings reader cannot be nil")
	}
	if cfg.Replies == nil {
		panic("handlers: reply sender cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &DashboardHandler{
		conversations: cfg.Conversations,
		settings:      cfg.Settings,
		replies:       cfg.Replies,
		sessions:      cfg.Sessions,
		telegram:      cfg.Telegram,
		connections:   cfg.Connections,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        cfg.Logger,
	}
}

// AIStatusResponse reports whether AI replies are active for a conversation.
type AIStatusResponse struct {
	ConversationID  string `json:"conversation_id"`
	AIEnabled       bool   `json:"ai_enabled"`
	GlobalAIEnabled bool   `json:"global_ai_enabled"`
	HasAPIKey       bool   `json:"has_api_key"`
}

// GetConversationAI handles GET /api/conversations/{id}/ai.
func (h *DashboardHandler) GetConversationAI(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	conv, err := h.conversations.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		h.conversationError(w, orgID, err)
		return
	}
	resp := AIStatusResponse{ConversationID: conv.ID, AIEnabled: conv.AIEnabled}
	settings, err := h.settings.Get(r.Context(), orgID)
	switch {
	case err == nil:
		resp.GlobalAIEnabled = settings.Enabled
		resp.HasAPIKey = settings.HasCredential()
	case !errors.Is(err, ai.ErrSettingsNotFound):
		h.logger.ForOrg(orgID).Error("dashboard: load ai settings failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type toggleAIRequest struct {
	AIEnabled *bool `json:"ai_enabled" validate:"required"`
}

// ToggleConversationAI handles PATCH /api/conversations/{id}/ai.
func (h *DashboardHandler) ToggleConversationAI(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req toggleAIRequest
	if err := decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	conv, err := h.conversations.ToggleAI(r.Context(), orgID, chi.URLParam(r, "id"), *req.AIEnabled)
	if err != nil {
		h.conversationError(w, orgID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversation_id": conv.ID, "ai_enabled": conv.AIEnabled})
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required"`
}

// MessageResponse is a stored message as returned to the dashboard.
type MessageResponse struct {
	ID                string    `json:"id"`
	ConversationID    string    `json:"conversation_id"`
	SenderType        string    `json:"sender_type"`
	Text              string    `json:"text"`
	ExternalMessageID string    `json:"external_message_id,omitempty"`
	Status            string    `json:"status"`
	IsAIGenerated     bool      `json:"is_ai_generated"`
	CreatedAt         time.Time `json:"created_at"`
}

// SendMessage handles POST /api/conversations/{id}/messages, the operator reply.
func (h *DashboardHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	}
	conv, err := h.conversations.Get(r.Context(), orgID, chi.URLParam(r, "id"))
	if err != nil {
		h.conversationError(w, orgID, err)
		return
	}

	reply := messaging.Reply{Conversation: conv, Text: req.Text, Sender: messages.SenderUser}
	if userID, ok := tenancy.UserIDFromContext(r.Context()); ok {
		reply.Metadata = map[string]any{"operator_id": userID}
	}
	msg, err := h.replies.SendReply(r.Context(), reply)
	switch {
	case err == nil:
	case errors.Is(err, channels.ErrChannelNotConnected):
		jsonError(w, "channel not connected", http.StatusConflict)
		return
	case errors.Is(err, channels.ErrChannelSendFailed):
		jsonError(w, "channel send failed", http.StatusBadGateway)
		return
	case errors.Is(err, messaging.ErrEmptyReply):
		jsonError(w, "text is required", http.StatusBadRequest)
		return
	default:
		h.logger.ForOrg(orgID).Error("dashboard: operator reply failed", "conversation_id", conv.ID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(msg))
}

// MarkRead handles POST /api/conversations/{id}/read.
func (h *DashboardHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	if err := h.conversations.MarkRead(r.Context(), orgID, chi.URLParam(r, "id")); err != nil {
		h.conversationError(w, orgID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartWhatsAppSession handles POST /api/whatsapp/session/start.
func (h *DashboardHandler) StartWhatsAppSession(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(ctx context.Context, orgID string) (*whatsapp.Session, error) {
		return h.sessions.Start(ctx, orgID)
	})
}

// WhatsAppSession handles GET /api/whatsapp/session.
func (h *DashboardHandler) WhatsAppSession(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(ctx context.Context, orgID string) (*whatsapp.Session, error) {
		return h.sessions.Refresh(ctx, orgID)
	})
}

// StopWhatsAppSession handles POST /api/whatsapp/session/stop.
func (h *DashboardHandler) StopWhatsAppSession(w http.ResponseWriter, r *http.Request) {
	h.sessionAction(w, r, func(ctx context.Context, orgID string) (*whatsapp.Session, error) {
		if err := h.sessions.Stop(ctx, orgID); err != nil {
			return nil, err
		}
		return &whatsapp.Session{OrgID: orgID, Status: whatsapp.StatusDisconnected}, nil
	})
}

func (h *DashboardHandler) sessionAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string) (*whatsapp.Session, error)) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	if h.sessions == nil {
		jsonError(w, "whatsapp not configured", http.StatusNotFound)
		return
	}
	session, err := action(r.Context(), orgID)
	if err != nil {
		h.logger.ForOrg(orgID).Error("dashboard: whatsapp session call failed", "error", err)
		jsonError(w, "whatsapp bridge unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type connectTelegramRequest struct {
	BotToken string `json:"bot_token" validate:"required"`
}

// ConnectTelegram handles POST /api/telegram/connect.
func (h *DashboardHandler) ConnectTelegram(w http.ResponseWriter, r *http.Request) {
	orgID, ok := requireOrg(w, r)
	if !ok {
		return
	}
	if h.telegram == nil || h.connections == nil {
		jsonError(w, "telegram not configured", http.StatusNotFound)
		return
	}
	var req connectTelegramRequest
	if err := decodeRequest(r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	log := h.logger.ForOrg(orgID)
	webhookURL := h.publicBaseURL + "/webhooks/telegram/" + orgID
	conn, bot, err := h.telegram.Connect(r.Context(), orgID, req.BotToken, webhookURL)
	if err != nil {
		log.Warn("dashboard: telegram connect failed", "error", err)
		jsonError(w, "could not connect bot", http.StatusBadRequest)
		return
	}
	if err := h.connections.Save(r.Context(), conn); err != nil {
		log.Error("dashboard: save telegram connection failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"connected": true, "bot": bot})
}

func (h *DashboardHandler) conversationError(w http.ResponseWriter, orgID string, err error) {
	if errors.Is(err, conversations.ErrConversationNotFound) {
		jsonError(w, "conversation not found", http.StatusNotFound)
		return
	}
	h.logger.ForOrg(orgID).Error("dashboard: conversation call failed", "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

func requireOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgID, ok := tenancy.OrgIDFromContext(r.Context())
	if !ok {
		jsonError(w, "missing org", http.StatusUnauthorized)
	}
	return orgID, ok
}

func toMessageResponse(msg *messages.Message) MessageResponse {
	resp := MessageResponse{
		ID:                msg.ID,
		SenderType:        string(msg.SenderType),
		Text:              msg.Text,
		ExternalMessageID: msg.ExternalMessageID,
		Status:            string(msg.Status),
		IsAIGenerated:     msg.IsAIGenerated,
		CreatedAt:         msg.CreatedAt,
	}
	if msg.ConversationID != nil {
		resp.ConversationID = *msg.ConversationID
	}
	return resp
}
