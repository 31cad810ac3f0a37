package conversations

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/inbox-ai-platform/internal/quota"
	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

// QuotaChecker decides whether the org may open a new conversation.
type QuotaChecker interface {
	Check(ctx context.Context, orgID string) (quota.Decision, error)
}

// Service resolves conversations for inbound traffic and serves operator toggles.
type Service struct {
	repo   Repository
	quota  QuotaChecker
	logger *logging.Logger
}

// NewService wires the repository and quota guard.
func NewService(repo Repository, guard QuotaChecker, logger *logging.Logger) *Service {
	if repo == nil {
		panic("conversations: repository cannot be nil")
	}
	if guard == nil {
		panic("conversations: quota checker cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, quota: guard, logger: logger}
}

// Resolve returns the conversation for the request, creating it when the
// quota allows. A missing lead is attached to an existing conversation.
func (s *Service) Resolve(ctx context.Context, req ResolveRequest) (*Conversation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	conv, err := s.repo.Find(ctx, req.OrgID, req.ChannelType, req.ExternalChatID)
	switch {
	case err == nil:
		return s.attachLead(ctx, conv, req.LeadID)
	case !errors.Is(err, ErrConversationNotFound):
		return nil, fmt.Errorf("conversations: find: %w", err)
	}

	decision, err := s.quota.Check(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		// a concurrent first contact may have created it since the Find above
		if existing, findErr := s.repo.Find(ctx, req.OrgID, req.ChannelType, req.ExternalChatID); findErr == nil {
			return s.attachLead(ctx, existing, req.LeadID)
		}
		limit := 0
		if decision.Limit != nil {
			limit = *decision.Limit
		}
		return nil, &QuotaExceededError{Current: decision.Current, Limit: limit}
	}

	title := req.TitleHint
	if title == "" {
		title = req.ExternalChatID
	}
	conv = &Conversation{
		OrgID:          req.OrgID,
		ChannelType:    req.ChannelType,
		ExternalChatID: req.ExternalChatID,
		LeadID:         req.LeadID,
		ConnectionID:   req.ConnectionID,
		Title:          title,
		Status:         StatusOpen,
		AIEnabled:      true,
	}
	created, err := s.repo.Insert(ctx, conv)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.ForOrg(req.OrgID).Info("conversation created",
			"conversation_id", conv.ID, "channel", req.ChannelType, "chat_id", req.ExternalChatID)
		return conv, nil
	}

	// lost the insert race; the winner's row is authoritative
	existing, err := s.repo.Find(ctx, req.OrgID, req.ChannelType, req.ExternalChatID)
	if err != nil {
		return nil, fmt.Errorf("conversations: refetch after conflict: %w", err)
	}
	return s.attachLead(ctx, existing, req.LeadID)
}

func (s *Service) attachLead(ctx context.Context, conv *Conversation, leadID *string) (*Conversation, error) {
	if conv.LeadID != nil || leadID == nil || *leadID == "" {
		return conv, nil
	}
	if err := s.repo.AttachLead(ctx, conv.ID, *leadID); err != nil {
		s.logger.ForOrg(conv.OrgID).Warn("lead attach failed",
			"conversation_id", conv.ID, "lead_id", *leadID, "error", err)
		return conv, nil
	}
	id := *leadID
	conv.LeadID = &id
	return conv, nil
}

// Get returns a conversation scoped to the org.
func (s *Service) Get(ctx context.Context, orgID, id string) (*Conversation, error) {
	return s.repo.Get(ctx, orgID, id)
}

// ToggleAI enables or disables AI replies for one conversation.
func (s *Service) ToggleAI(ctx context.Context, orgID, id string, enabled bool) (*Conversation, error) {
	conv, err := s.repo.SetAIEnabled(ctx, orgID, id, enabled)
	if err != nil {
		return nil, err
	}
	s.logger.ForOrg(orgID).Info("conversation ai toggled", "conversation_id", id, "ai_enabled", enabled)
	return conv, nil
}

// MarkRead resets the unread counter.
func (s *Service) MarkRead(ctx context.Context, orgID, id string) error {
	return s.repo.MarkRead(ctx, orgID, id)
}
