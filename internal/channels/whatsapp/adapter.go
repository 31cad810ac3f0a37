// Package whatsapp adapts WhatsApp sessions run by the session bridge.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

const chatSuffix = "@c.us"

var tracer = otel.Tracer("inbox.channels.whatsapp")

var placeholders = map[string]string{
	"image":    "[Image]",
	"video":    "[Video]",
	"audio":    "[Voice message]",
	"ptt":      "[Voice message]",
	"document": "[Document]",
	"sticker":  "[Sticker]",
	"location": "[Location]",
	"contact":  "[Contact]",
}

// Adapter implements channels.Adapter for WhatsApp.
type Adapter struct {
	sessions *SessionManager
}

// NewAdapter creates an adapter sending through the session registry.
func NewAdapter(sessions *SessionManager) *Adapter {
	if sessions == nil {
		panic("whatsapp: session manager cannot be nil")
	}
	return &Adapter{sessions: sessions}
}

// Type returns the WhatsApp channel type.
func (a *Adapter) Type() channels.ChannelType {
	return channels.ChannelWhatsApp
}

// Sender returns a sender for the connection's organization. The session
// must be ready.
func (a *Adapter) Sender(ctx context.Context, conn *channels.Connection) (channels.Sender, error) {
	if conn == nil {
		return nil, channels.ErrChannelNotConnected
	}
	if !a.sessions.Ready(ctx, conn.OrganizationID) {
		return nil, fmt.Errorf("%w: whatsapp session for org %s is not ready", channels.ErrChannelNotConnected, conn.OrganizationID)
	}
	return &sender{sessions: a.sessions, orgID: conn.OrganizationID}, nil
}

type sender struct {
	sessions *SessionManager
	orgID    string
}

func (s *sender) Send(ctx context.Context, externalChatID, text string) (string, error) {
	ctx, span := tracer.Start(ctx, "whatsapp.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.chat_id", externalChatID))
	return s.sessions.Send(ctx, s.orgID, ChatID(externalChatID), text)
}

// ChatID returns the bridge chat id for a phone number or chat id.
func ChatID(value string) string {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "@") {
		return value
	}
	return value + chatSuffix
}

// Normalize decodes a bridge message into the channel-neutral shape.
func (a *Adapter) Normalize(orgID string, raw []byte) (*channels.NormalizedInboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: whatsapp: %v", channels.ErrInvalidPayload, err)
	}
	if strings.TrimSpace(msg.From) == "" || strings.TrimSpace(msg.ID) == "" {
		return nil, channels.ErrIgnoredUpdate
	}
	// Group chats and status broadcasts are not leads.
	if !strings.HasSuffix(msg.From, chatSuffix) {
		return nil, channels.ErrIgnoredUpdate
	}

	phone := strings.TrimSuffix(msg.From, chatSuffix)
	name := strings.TrimSpace(msg.PushName)
	title := name
	if title == "" {
		title = phone
	}
	ts := time.Now().UTC()
	if msg.Timestamp > 0 {
		ts = time.Unix(msg.Timestamp, 0).UTC()
	}

	out := &channels.NormalizedInboundMessage{
		ChannelType:       channels.ChannelWhatsApp,
		OrganizationID:    orgID,
		ExternalChatID:    msg.From,
		ExternalUserID:    phone,
		UserFullName:      name,
		Phone:             phone,
		TitleHint:         title,
		ExternalMessageID: msg.ID,
		Timestamp:         ts,
		Metadata: map[string]any{
			"whatsapp_message_id": msg.ID,
			"timestamp":           msg.Timestamp,
		},
	}

	switch msg.Type {
	case "image", "video":
		out.MessageType = channels.MessageImage
		if msg.Type == "video" {
			out.MessageType = channels.MessageVideo
		}
		out.Text = firstNonEmpty(msg.Caption, placeholders[msg.Type])
		out.Attachments = mediaAttachment(msg, msg.Type)
	case "audio", "ptt":
		out.MessageType = channels.MessageAudio
		out.Text = placeholders[msg.Type]
		out.Attachments = mediaAttachment(msg, "audio")
	case "document":
		out.MessageType = channels.MessageFile
		out.Text = firstNonEmpty(msg.FileName, placeholders[msg.Type])
		out.Attachments = mediaAttachment(msg, "document")
	case "sticker":
		out.MessageType = channels.MessageSticker
		out.Text = placeholders[msg.Type]
		out.Attachments = mediaAttachment(msg, "sticker")
	case "location":
		out.MessageType = channels.MessageLocation
		out.Text = firstNonEmpty(msg.Body, placeholders[msg.Type])
		if msg.Location != nil {
			out.Metadata["location"] = msg.Location
		}
	case "contact", "vcard":
		out.MessageType = channels.MessageContact
		out.Text = placeholders["contact"]
		if msg.Contact != nil {
			out.Metadata["contact"] = msg.Contact
		}
	default:
		out.MessageType = channels.MessageText
		out.Text = msg.Body
	}
	return out, nil
}

func mediaAttachment(msg InboundMessage, kind string) []channels.Attachment {
	if msg.MediaURL == "" {
		return nil
	}
	return []channels.Attachment{{
		Kind:     kind,
		URL:      msg.MediaURL,
		MimeType: msg.MimeType,
		FileName: msg.FileName,
	}}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
