package conversations

import (
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusArchived Status = "archived"
	StatusSpam     Status = "spam"
)

// PreviewLength is the number of runes kept in LastMessagePreview.
const PreviewLength = 100

// Conversation is one thread per (org, channel, external chat).
type Conversation struct {
	ID                 string
	OrgID              string
	ChannelType        channels.ChannelType
	ExternalChatID     string
	LeadID             *string
	ConnectionID       *string
	Title              string
	Status             Status
	AIEnabled          bool
	UnreadCount        int
	LastMessageAt      *time.Time
	LastMessagePreview string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ResolveRequest identifies the conversation an inbound message belongs to.
type ResolveRequest struct {
	OrgID          string
	ChannelType    channels.ChannelType
	ExternalChatID string
	LeadID         *string
	ConnectionID   *string
	TitleHint      string
}

func (r ResolveRequest) validate() error {
	if r.OrgID == "" || r.ChannelType == "" || r.ExternalChatID == "" {
		return ErrMissingKey
	}
	return nil
}

// SummaryUpdate is applied after a message is stored in a conversation.
// IncrementUnread adds one unread message; otherwise unread resets to zero.
type SummaryUpdate struct {
	LastMessageAt   time.Time
	Preview         string
	IncrementUnread bool
}

// Preview truncates text to PreviewLength runes.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength])
}
