package conversations

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// Repository persists conversations.
type Repository interface {
	Find(ctx context.Context, orgID string, channel channels.ChannelType, externalChatID string) (*Conversation, error)
	Get(ctx context.Context, orgID, id string) (*Conversation, error)
	// Insert reports false when a conversation with the same key already exists.
	Insert(ctx context.Context, conv *Conversation) (bool, error)
	AttachLead(ctx context.Context, id, leadID string) error
	SetAIEnabled(ctx context.Context, orgID, id string, enabled bool) (*Conversation, error)
	UpdateSummary(ctx context.Context, id string, update SummaryUpdate) error
	MarkRead(ctx context.Context, orgID, id string) error
	CountConversations(ctx context.Context, orgID string) (int, error)
}

type convKey struct {
	org     string
	channel channels.ChannelType
	chat    string
}

// InMemoryRepository is a Repository for tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Conversation
	byKey map[convKey]string
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:  make(map[string]*Conversation),
		byKey: make(map[convKey]string),
	}
}

func (r *InMemoryRepository) Find(_ context.Context, orgID string, channel channels.ChannelType, externalChatID string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[convKey{orgID, channel, externalChatID}]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return clone(r.byID[id]), nil
}

func (r *InMemoryRepository) Get(_ context.Context, orgID, id string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.byID[id]
	if !ok || conv.OrgID != orgID {
		return nil, ErrConversationNotFound
	}
	return clone(conv), nil
}

func (r *InMemoryRepository) Insert(_ context.Context, conv *Conversation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := convKey{conv.OrgID, conv.ChannelType, conv.ExternalChatID}
	if _, exists := r.byKey[key]; exists {
		return false, nil
	}
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt, conv.UpdatedAt = now, now
	r.byID[conv.ID] = clone(conv)
	r.byKey[key] = conv.ID
	return true, nil
}

func (r *InMemoryRepository) AttachLead(_ context.Context, id, leadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return ErrConversationNotFound
	}
	if conv.LeadID == nil {
		conv.LeadID = &leadID
		conv.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *InMemoryRepository) SetAIEnabled(_ context.Context, orgID, id string, enabled bool) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok || conv.OrgID != orgID {
		return nil, ErrConversationNotFound
	}
	conv.AIEnabled = enabled
	conv.UpdatedAt = time.Now().UTC()
	return clone(conv), nil
}

func (r *InMemoryRepository) UpdateSummary(_ context.Context, id string, update SummaryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return ErrConversationNotFound
	}
	at := update.LastMessageAt
	conv.LastMessageAt = &at
	conv.LastMessagePreview = update.Preview
	if update.IncrementUnread {
		conv.UnreadCount++
	} else {
		conv.UnreadCount = 0
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) MarkRead(_ context.Context, orgID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok || conv.OrgID != orgID {
		return ErrConversationNotFound
	}
	conv.UnreadCount = 0
	return nil
}

func (r *InMemoryRepository) CountConversations(_ context.Context, orgID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, conv := range r.byID {
		if conv.OrgID == orgID {
			n++
		}
	}
	return n, nil
}

func clone(c *Conversation) *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.LeadID != nil {
		v := *c.LeadID
		out.LeadID = &v
	}
	if c.ConnectionID != nil {
		v := *c.ConnectionID
		out.ConnectionID = &v
	}
	if c.LastMessageAt != nil {
		v := *c.LastMessageAt
		out.LastMessageAt = &v
	}
	return &out
}
