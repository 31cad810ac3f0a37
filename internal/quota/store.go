package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// SQLSubscriptionStore reads subscriptions owned by the billing system.
type SQLSubscriptionStore struct {
	db *sql.DB
}

// NewSQLSubscriptionStore creates a read-only subscription store.
func NewSQLSubscriptionStore(db *sql.DB) *SQLSubscriptionStore {
	if db == nil {
		panic("quota: sql db required")
	}
	return &SQLSubscriptionStore{db: db}
}

// ActiveSubscription returns the org's active subscription with its plan.
func (s *SQLSubscriptionStore) ActiveSubscription(ctx context.Context, orgID string) (*Subscription, error) {
	query := `
		SELECT s.id, s.organization_id, s.status, p.id, p.name, p.dialog_limit
		FROM subscriptions s
		JOIN subscription_plans p ON p.id = s.plan_id
		WHERE s.organization_id = $1 AND s.status = 'active'
		ORDER BY s.created_at DESC
		LIMIT 1
	`
	var (
		sub   Subscription
		limit sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&sub.ID, &sub.OrgID, &sub.Status, &sub.Plan.ID, &sub.Plan.Name, &limit,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("quota: query subscription: %w", err)
	}
	if limit.Valid {
		v := int(limit.Int64)
		sub.Plan.DialogLimit = &v
	}
	return &sub, nil
}

// MemorySubscriptionStore is an in-process SubscriptionReader.
type MemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewMemorySubscriptionStore returns an empty store (every org on the free tier).
func NewMemorySubscriptionStore() *MemorySubscriptionStore {
	return &MemorySubscriptionStore{subs: make(map[string]*Subscription)}
}

// Set assigns a subscription to an organization; nil removes it.
func (s *MemorySubscriptionStore) Set(orgID string, sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub == nil {
		delete(s.subs, orgID)
		return
	}
	s.subs[orgID] = sub
}

func (s *MemorySubscriptionStore) ActiveSubscription(_ context.Context, orgID string) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[orgID]
	if !ok {
		return nil, nil
	}
	clone := *sub
	return &clone, nil
}
