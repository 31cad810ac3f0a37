package middleware

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/inbox-ai-platform/internal/tenancy"
)

// DashboardClaims are the claims carried by dashboard bearer tokens.
type DashboardClaims struct {
	OrgID string `json:"org_id"`
	jwt.RegisteredClaims
}

// DashboardJWT enforces an HMAC-signed bearer token whose org_id claim scopes
// every request. The subject, when present, is the operator id.
func DashboardJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "dashboard auth disabled", http.StatusUnauthorized)
				return
			}
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			claims := DashboardClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			orgID := strings.TrimSpace(claims.OrgID)
			if orgID == "" {
				http.Error(w, "token has no org_id", http.StatusForbidden)
				return
			}
			ctx := tenancy.WithOrgID(r.Context(), orgID)
			if claims.Subject != "" {
				ctx = tenancy.WithUserID(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return token, token != ""
}
