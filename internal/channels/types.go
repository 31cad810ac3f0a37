package channels

import (
	"fmt"
	"strings"
	"time"
)

// ChannelType identifies a messenger channel.
type ChannelType string

const (
	ChannelTelegram ChannelType = "telegram"
	ChannelWhatsApp ChannelType = "whatsapp"
)

// ParseChannelType validates a channel name.
func ParseChannelType(value string) (ChannelType, error) {
	switch ChannelType(strings.ToLower(strings.TrimSpace(value))) {
	case ChannelTelegram:
		return ChannelTelegram, nil
	case ChannelWhatsApp:
		return ChannelWhatsApp, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, value)
	}
}

// MessageType is the channel-neutral content kind of a message.
type MessageType string

const (
	MessageText     MessageType = "text"
	MessageImage    MessageType = "image"
	MessageFile     MessageType = "file"
	MessageAudio    MessageType = "audio"
	MessageVideo    MessageType = "video"
	MessageSticker  MessageType = "sticker"
	MessageLocation MessageType = "location"
	MessageContact  MessageType = "contact"
	MessageOther    MessageType = "other"
)

// Attachment describes media referenced by a message.
type Attachment struct {
	Kind     string `json:"kind"`
	FileID   string `json:"file_id,omitempty"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// NormalizedInboundMessage is an inbound message stripped of channel specifics.
type NormalizedInboundMessage struct {
	ChannelType       ChannelType
	OrganizationID    string
	ExternalChatID    string
	ExternalUserID    string
	UserName          string
	UserFullName      string
	Phone             string
	TitleHint         string
	Text              string
	MessageType       MessageType
	Attachments       []Attachment
	ExternalMessageID string
	Timestamp         time.Time
	Edited            bool
	Metadata          map[string]any
}

// HasText reports whether the message carries non-blank text.
func (m *NormalizedInboundMessage) HasText() bool {
	return m != nil && strings.TrimSpace(m.Text) != ""
}

// Credentials are the per-connection secrets of a channel.
type Credentials struct {
	BotToken      string `json:"bot_token,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	PushName      string `json:"pushname,omitempty"`
}

// Connection is an organization's link to a messenger channel.
type Connection struct {
	ID             string
	OrganizationID string
	ChannelType    ChannelType
	Credentials    Credentials
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
