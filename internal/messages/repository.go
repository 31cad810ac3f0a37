package messages

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Repository persists messages.
type Repository interface {
	// Insert reports false when a message with the same dedup key exists.
	Insert(ctx context.Context, msg *Message) (bool, error)
	FindByDedupKey(ctx context.Context, key DedupKey) (*Message, error)
	Get(ctx context.Context, orgID, id string) (*Message, error)
	// Recent returns the last n messages of a conversation, oldest first.
	Recent(ctx context.Context, conversationID string, n int) ([]Message, error)
}

type memKey struct {
	org, conv, channel, chat, ext string
}

func keyOf(k DedupKey) memKey {
	if k.ConversationID != nil {
		return memKey{conv: *k.ConversationID, ext: k.ExternalMessageID}
	}
	return memKey{org: k.OrgID, channel: string(k.ChannelType), chat: k.ExternalChatID, ext: k.ExternalMessageID}
}

// InMemoryRepository is a Repository for tests and local runs.
type InMemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*Message
	byKey map[memKey]string
	order []string
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:  make(map[string]*Message),
		byKey: make(map[memKey]string),
	}
}

func (r *InMemoryRepository) Insert(_ context.Context, msg *Message) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var key memKey
	if msg.ExternalMessageID != "" {
		key = keyOf(msg.dedupKey())
		if _, exists := r.byKey[key]; exists {
			return false, nil
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	stored := *msg
	r.byID[msg.ID] = &stored
	r.order = append(r.order, msg.ID)
	if msg.ExternalMessageID != "" {
		r.byKey[key] = msg.ID
	}
	return true, nil
}

func (r *InMemoryRepository) FindByDedupKey(_ context.Context, key DedupKey) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[keyOf(key)]
	if !ok {
		return nil, ErrMessageNotFound
	}
	msg := *r.byID[id]
	return &msg, nil
}

func (r *InMemoryRepository) Get(_ context.Context, orgID, id string) (*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	msg, ok := r.byID[id]
	if !ok || msg.OrgID != orgID {
		return nil, ErrMessageNotFound
	}
	out := *msg
	return &out, nil
}

func (r *InMemoryRepository) Recent(_ context.Context, conversationID string, n int) ([]Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Message
	for _, id := range r.order {
		msg := r.byID[id]
		if msg.ConversationID != nil && *msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}
