// Package quota enforces the per-organization dialog (conversation) limit.
package quota

import (
	"context"
	"fmt"
)

// DefaultFreeTierLimit applies to organizations without an active subscription.
const DefaultFreeTierLimit = 50

// Plan is a subscription plan. A nil DialogLimit means unlimited.
type Plan struct {
	ID          string
	Name        string
	DialogLimit *int
}

// Subscription is an organization's active subscription.
type Subscription struct {
	ID     string
	OrgID  string
	Status string
	Plan   Plan
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	Current int
	Limit   *int
}

// SubscriptionReader returns the active subscription, or nil when there is none.
type SubscriptionReader interface {
	ActiveSubscription(ctx context.Context, orgID string) (*Subscription, error)
}

// ConversationCounter counts an organization's conversations.
type ConversationCounter interface {
	CountConversations(ctx context.Context, orgID string) (int, error)
}

// Guard decides whether an organization may open another conversation.
// It is advisory: concurrent checks may overshoot the limit slightly.
type Guard struct {
	subs      SubscriptionReader
	counter   ConversationCounter
	freeLimit int
}

// NewGuard creates a guard. freeLimit <= 0 selects DefaultFreeTierLimit.
func NewGuard(subs SubscriptionReader, counter ConversationCounter, freeLimit int) *Guard {
	if subs == nil {
		panic("quota: subscription reader cannot be nil")
	}
	if counter == nil {
		panic("quota: conversation counter cannot be nil")
	}
	if freeLimit <= 0 {
		freeLimit = DefaultFreeTierLimit
	}
	return &Guard{subs: subs, counter: counter, freeLimit: freeLimit}
}

// Check allows a new conversation while the current count is below the limit.
func (g *Guard) Check(ctx context.Context, orgID string) (Decision, error) {
	sub, err := g.subs.ActiveSubscription(ctx, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: load subscription: %w", err)
	}

	limit := g.freeLimit
	if sub != nil {
		if sub.Plan.DialogLimit == nil {
			return Decision{Allowed: true}, nil
		}
		limit = *sub.Plan.DialogLimit
	}

	current, err := g.counter.CountConversations(ctx, orgID)
	if err != nil {
		return Decision{}, fmt.Errorf("quota: count conversations: %w", err)
	}
	return Decision{Allowed: current < limit, Current: current, Limit: &limit}, nil
}
