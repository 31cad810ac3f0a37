package events

import "time"

// MessageReceivedV1 is emitted for every newly stored inbound message.
type MessageReceivedV1 struct {
	MessageID         string    `json:"message_id"`
	OrgID             string    `json:"org_id"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	LeadID            string    `json:"lead_id,omitempty"`
	Channel           string    `json:"channel"`
	ExternalChatID    string    `json:"external_chat_id"`
	ExternalMessageID string    `json:"external_message_id"`
	MessageType       string    `json:"message_type"`
	Text              string    `json:"text"`
	Edited            bool      `json:"edited,omitempty"`
	ReceivedAt        time.Time `json:"received_at"`
}

func (MessageReceivedV1) EventType() string {
	return TypeMessageReceived
}

func (e MessageReceivedV1) Validate() error {
	return missingFields("message_id", e.MessageID, "org_id", e.OrgID, "channel", e.Channel)
}

// AIReplySentV1 is emitted after an AI reply was delivered and stored.
type AIReplySentV1 struct {
	MessageID         string    `json:"message_id"`
	OrgID             string    `json:"org_id"`
	ConversationID    string    `json:"conversation_id"`
	InboundMessageID  string    `json:"inbound_message_id"`
	Channel           string    `json:"channel"`
	ExternalMessageID string    `json:"external_message_id"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	TokensUsed        int       `json:"tokens_used"`
	SentAt            time.Time `json:"sent_at"`
}

func (AIReplySentV1) EventType() string {
	return TypeAIReplySent
}

func (e AIReplySentV1) Validate() error {
	return missingFields("message_id", e.MessageID, "org_id", e.OrgID, "conversation_id", e.ConversationID)
}

// QuotaExceededV1 is emitted when a new conversation was denied by the dialog limit.
type QuotaExceededV1 struct {
	OrgID          string    `json:"org_id"`
	Channel        string    `json:"channel"`
	ExternalChatID string    `json:"external_chat_id"`
	Current        int       `json:"current"`
	Limit          int       `json:"limit"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func (QuotaExceededV1) EventType() string {
	return TypeQuotaExceeded
}

func (e QuotaExceededV1) Validate() error {
	return missingFields("org_id", e.OrgID, "channel", e.Channel)
}
