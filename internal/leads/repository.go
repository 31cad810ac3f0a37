package leads

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/inbox-ai-platform/internal/channels"
)

// Repository defines lead persistence.
type Repository interface {
	FindByIdentity(ctx context.Context, orgID string, channel channels.ChannelType, externalID string) (*Lead, error)
	// Insert creates the lead unless one already exists for its identity,
	// in which case it returns created=false and leaves the store unchanged.
	Insert(ctx context.Context, lead *Lead) (created bool, err error)
	UpdateProfile(ctx context.Context, id, name, username, phone string) error
	GetByID(ctx context.Context, orgID, id string) (*Lead, error)
}

// InMemoryRepository is an in-memory implementation of Repository
type InMemoryRepository struct {
	mu         sync.RWMutex
	leads      map[string]*Lead
	byIdentity map[string]string
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:      make(map[string]*Lead),
		byIdentity: make(map[string]string),
	}
}

func identityKey(orgID string, channel channels.ChannelType, externalID string) string {
	return orgID + "|" + string(channel) + "|" + externalID
}

func (r *InMemoryRepository) FindByIdentity(_ context.Context, orgID string, channel channels.ChannelType, externalID string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdentity[identityKey(orgID, channel, externalID)]
	if !ok {
		return nil, ErrLeadNotFound
	}
	clone := *r.leads[id]
	return &clone, nil
}

func (r *InMemoryRepository) Insert(_ context.Context, lead *Lead) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := identityKey(lead.OrgID, lead.ChannelType, lead.ExternalID)
	if _, exists := r.byIdentity[key]; exists {
		return false, nil
	}
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	clone := *lead
	r.leads[lead.ID] = &clone
	r.byIdentity[key] = lead.ID
	return true, nil
}

func (r *InMemoryRepository) UpdateProfile(_ context.Context, id, name, username, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	lead, ok := r.leads[id]
	if !ok {
		return ErrLeadNotFound
	}
	lead.Name, lead.Username, lead.Phone = name, username, phone
	lead.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, orgID, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lead, ok := r.leads[id]
	if !ok || lead.OrgID != orgID {
		return nil, ErrLeadNotFound
	}
	clone := *lead
	return &clone, nil
}
