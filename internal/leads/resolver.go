package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/inbox-ai-platform/pkg/logging"
)

const (
	defaultAttempts   = 2
	defaultRetryDelay = 100 * time.Millisecond
)

// Resolver maps channel identities to leads, creating them on first contact.
type Resolver struct {
	repo       Repository
	logger     *logging.Logger
	attempts   int
	retryDelay time.Duration
}

// NewResolver creates a resolver over the repository.
func NewResolver(repo Repository, logger *logging.Logger) *Resolver {
	if repo == nil {
		panic("leads: repository cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Resolver{
		repo:       repo,
		logger:     logger,
		attempts:   defaultAttempts,
		retryDelay: defaultRetryDelay,
	}
}

// Resolve returns the lead for the identity, creating it with status new
// when absent and refreshing changed profile fields when present. A
// persistence failure is retried once before giving up.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (*Lead, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lead, err := r.resolveOnce(ctx, id)
		if err == nil {
			return lead, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == r.attempts {
			break
		}
		r.logger.ForOrg(id.OrgID).Warn("lead resolution failed, retrying",
			"channel", id.ChannelType, "external_id", id.ExternalID, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retryDelay):
		}
	}
	return nil, fmt.Errorf("leads: resolve %s/%s: %w", id.ChannelType, id.ExternalID, lastErr)
}

func (r *Resolver) resolveOnce(ctx context.Context, id Identity) (*Lead, error) {
	existing, err := r.repo.FindByIdentity(ctx, id.OrgID, id.ChannelType, id.ExternalID)
	switch {
	case err == nil:
		return r.refresh(ctx, id, existing)
	case !errors.Is(err, ErrLeadNotFound):
		return nil, err
	}

	lead := &Lead{
		OrgID:       id.OrgID,
		ChannelType: id.ChannelType,
		ExternalID:  id.ExternalID,
		Name:        strings.TrimSpace(id.Name),
		Username:    strings.TrimSpace(id.Username),
		Phone:       strings.TrimSpace(id.Phone),
		Status:      StatusNew,
		Metadata:    id.Metadata,
	}
	created, err := r.repo.Insert(ctx, lead)
	if err != nil {
		return nil, err
	}
	if created {
		r.logger.ForOrg(id.OrgID).Info("lead created", "lead_id", lead.ID, "channel", id.ChannelType)
		return lead, nil
	}
	// Lost the race to a concurrent insert; the winner's row is the lead.
	return r.repo.FindByIdentity(ctx, id.OrgID, id.ChannelType, id.ExternalID)
}

func (r *Resolver) refresh(ctx context.Context, id Identity, lead *Lead) (*Lead, error) {
	name, username, phone, changed := id.profileChanges(lead)
	if !changed {
		return lead, nil
	}
	if err := r.repo.UpdateProfile(ctx, lead.ID, name, username, phone); err != nil {
		// Stale profile fields are not worth failing the message for.
		r.logger.ForOrg(id.OrgID).Warn("lead profile refresh failed", "lead_id", lead.ID, "error", err)
		return lead, nil
	}
	lead.Name, lead.Username, lead.Phone = name, username, phone
	return lead, nil
}
