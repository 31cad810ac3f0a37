package messages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
	"github.com/wolfman30/inbox-ai-platform/internal/conversations"
	"github.com/wolfman30/inbox-ai-platform/internal/leads"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// SummaryUpdater refreshes the denormalized conversation summary.
type SummaryUpdater interface {
	UpdateSummary(ctx context.Context, conversationID string, update conversations.SummaryUpdate) error
}

// OutboundRecord describes a reply that was already delivered to the channel.
type OutboundRecord struct {
	Conversation      *conversations.Conversation
	Text              string
	Sender            SenderType
	ExternalMessageID string
	Metadata          map[string]any
}

// Store writes messages and maintains conversation summaries.
type Store struct {
	repo      Repository
	summaries SummaryUpdater
	logger    *logging.Logger
	now       func() time.Time
}

// NewStore creates a message store.
func NewStore(repo Repository, summaries SummaryUpdater, logger *logging.Logger) *Store {
	if repo == nil {
		panic("messages: repository cannot be nil")
	}
	if summaries == nil {
		panic("messages: summary updater cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		repo:      repo,
		summaries: summaries,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StoreInbound persists an inbound message. A redelivered message returns the
// existing row with created=false and leaves the summary untouched.
func (s *Store) StoreInbound(ctx context.Context, in channels.NormalizedInboundMessage, conv *conversations.Conversation, lead *leads.Lead) (*Message, bool, error) {
	text := in.Text
	if in.Edited {
		text = EditedMarker + text
	}
	createdAt := in.Timestamp
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	msg := &Message{
		OrgID:             in.OrganizationID,
		ChannelType:       in.ChannelType,
		ExternalChatID:    in.ExternalChatID,
		SenderType:        SenderLead,
		Text:              text,
		MessageType:       in.MessageType,
		Attachments:       in.Attachments,
		Metadata:          in.Metadata,
		ExternalMessageID: in.ExternalMessageID,
		Status:            StatusDelivered,
		CreatedAt:         createdAt,
	}
	if conv != nil {
		id := conv.ID
		msg.ConversationID = &id
	}
	if lead != nil {
		id := lead.ID
		msg.LeadID = &id
	}

	if conv != nil && msg.ExternalMessageID != "" {
		orphan, err := s.findOrphan(ctx, msg)
		if err != nil {
			return nil, false, err
		}
		if orphan != nil {
			return orphan, false, nil
		}
	}

	created, err := s.repo.Insert(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	if !created {
		existing, err := s.repo.FindByDedupKey(ctx, msg.dedupKey())
		if err != nil {
			return nil, false, fmt.Errorf("messages: load duplicate: %w", err)
		}
		return existing, false, nil
	}

	s.updateSummary(ctx, msg)
	return msg, true, nil
}

// StoreOutbound persists a reply sent by an operator or the AI.
func (s *Store) StoreOutbound(ctx context.Context, rec OutboundRecord) (*Message, error) {
	if rec.Conversation == nil {
		return nil, fmt.Errorf("messages: outbound requires a conversation")
	}
	if rec.Sender != SenderUser && rec.Sender != SenderAI {
		return nil, ErrInvalidSender
	}
	conv := rec.Conversation
	convID := conv.ID
	msg := &Message{
		OrgID:             conv.OrgID,
		ConversationID:    &convID,
		ChannelType:       conv.ChannelType,
		ExternalChatID:    conv.ExternalChatID,
		LeadID:            conv.LeadID,
		SenderType:        rec.Sender,
		Text:              rec.Text,
		MessageType:       channels.MessageText,
		Metadata:          rec.Metadata,
		ExternalMessageID: rec.ExternalMessageID,
		Status:            StatusSent,
		IsAIGenerated:     rec.Sender == SenderAI,
		CreatedAt:         s.now(),
	}
	created, err := s.repo.Insert(ctx, msg)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.repo.FindByDedupKey(ctx, msg.dedupKey())
	}
	s.updateSummary(ctx, msg)
	return msg, nil
}

// Recent returns the conversation's last n messages, oldest first.
func (s *Store) Recent(ctx context.Context, conversationID string, n int) ([]Message, error) {
	return s.repo.Recent(ctx, conversationID, n)
}

// Get returns a message scoped to the org.
func (s *Store) Get(ctx context.Context, orgID, id string) (*Message, error) {
	return s.repo.Get(ctx, orgID, id)
}

// findOrphan returns a copy of msg already stored without a conversation,
// e.g. while the dialog quota was exhausted.
func (s *Store) findOrphan(ctx context.Context, msg *Message) (*Message, error) {
	key := msg.dedupKey()
	key.ConversationID = nil
	existing, err := s.repo.FindByDedupKey(ctx, key)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, ErrMessageNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("messages: check orphan: %w", err)
	}
}

func (s *Store) updateSummary(ctx context.Context, msg *Message) {
	if msg.ConversationID == nil {
		return
	}
	update := conversations.SummaryUpdate{
		LastMessageAt:   msg.CreatedAt,
		Preview:         conversations.Preview(msg.Text),
		IncrementUnread: msg.SenderType == SenderLead,
	}
	if err := s.summaries.UpdateSummary(ctx, *msg.ConversationID, update); err != nil {
		s.logger.ForOrg(msg.OrgID).Warn("conversation summary update failed",
			"conversation_id", *msg.ConversationID, "message_id", msg.ID, "error", err)
	}
}
