package tenancy

import "context"

type ctxKey string

const (
	orgKey  ctxKey = "inbox.org_id"
	userKey ctxKey = "inbox.user_id"
)

// WithOrgID stores the org id in context.
func WithOrgID(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, orgKey, orgID)
}

// OrgIDFromContext extracts the org id if present.
func OrgIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, orgKey)
}

// WithUserID stores the authenticated dashboard user (operator) id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext extracts the operator id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	return stringValue(ctx, userKey)
}

func stringValue(ctx context.Context, key ctxKey) (string, bool) {
	val := ctx.Value(key)
	if val == nil {
		return "", false
	}
	s, ok := val.(string)
	return s, ok && s != ""
}
