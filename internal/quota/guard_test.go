package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedCounter struct {
	n   int
	err error
}

func (c fixedCounter) CountConversations(context.Context, string) (int, error) { return c.n, c.err }

func intPtr(v int) *int { return &v }

func TestGuardCheck(t *testing.T) {
	tests := []struct {
		name      string
		sub       *Subscription
		count     int
		freeLimit int
		allowed   bool
		limit     *int
	}{
		{name: "free tier below limit", count: 49, allowed: true, limit: intPtr(50)},
		{name: "free tier at limit", count: 50, allowed: false, limit: intPtr(50)},
		{name: "custom free tier", count: 3, freeLimit: 3, allowed: false, limit: intPtr(3)},
		{name: "plan limit", sub: &Subscription{Plan: Plan{DialogLimit: intPtr(500)}}, count: 499, allowed: true, limit: intPtr(500)},
		{name: "plan limit reached", sub: &Subscription{Plan: Plan{DialogLimit: intPtr(500)}}, count: 500, allowed: false, limit: intPtr(500)},
		{name: "unlimited plan", sub: &Subscription{Plan: Plan{}}, count: 100000, allowed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs := NewMemorySubscriptionStore()
			subs.Set("org-1", tt.sub)
			g := NewGuard(subs, fixedCounter{n: tt.count}, tt.freeLimit)

			d, err := g.Check(context.Background(), "org-1")
			require.NoError(t, err)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.limit, d.Limit)
		})
	}
}

func TestGuardPropagatesCounterError(t *testing.T) {
	g := NewGuard(NewMemorySubscriptionStore(), fixedCounter{err: errors.New("db down")}, 0)
	_, err := g.Check(context.Background(), "org-1")
	assert.Error(t, err)
}
