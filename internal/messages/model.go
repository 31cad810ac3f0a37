// Package messages persists inbound and outbound messages exactly once per
// external message id and keeps conversation summaries current.
package messages

import (
	"errors"
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderLead   SenderType = "lead"
	SenderUser   SenderType = "user"
	SenderAI     SenderType = "ai"
	SenderSystem SenderType = "system"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
)

// EditedMarker prefixes the text of edited inbound messages.
const EditedMarker = "[edited] "

var (
	// ErrMessageNotFound is returned when a message lookup misses
	ErrMessageNotFound = errors.New("messages: message not found")

	// ErrInvalidSender is returned for outbound messages not sent by a user or the ai
	ErrInvalidSender = errors.New("messages: outbound sender must be user or ai")
)

// Message is a stored message.
type Message struct {
	ID                string
	OrgID             string
	ConversationID    *string
	ChannelType       channels.ChannelType
	ExternalChatID    string
	LeadID            *string
	SenderType        SenderType
	Text              string
	MessageType       channels.MessageType
	Attachments       []channels.Attachment
	Metadata          map[string]any
	ExternalMessageID string
	Status            Status
	IsAIGenerated     bool
	CreatedAt         time.Time
}

// DedupKey identifies a message for idempotent storage. ConversationID is
// preferred; orphaned messages fall back to the chat coordinates.
type DedupKey struct {
	OrgID             string
	ConversationID    *string
	ChannelType       channels.ChannelType
	ExternalChatID    string
	ExternalMessageID string
}

func (m *Message) dedupKey() DedupKey {
	return DedupKey{
		OrgID:             m.OrgID,
		ConversationID:    m.ConversationID,
		ChannelType:       m.ChannelType,
		ExternalChatID:    m.ExternalChatID,
		ExternalMessageID: m.ExternalMessageID,
	}
}
