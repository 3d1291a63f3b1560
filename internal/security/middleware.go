package security

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const (
	actorKey contextKey = "actor"
	roleKey  contextKey = "role"
)

const bearerPrefix = "bearer "

// WithActor returns a context carrying the authenticated actor identity.
func WithActor(ctx context.Context, actor, role string) context.Context {
	ctx = context.WithValue(ctx, actorKey, actor)
	return context.WithValue(ctx, roleKey, role)
}

// ActorFrom returns the authenticated actor from ctx, or "" when the request
// was not authenticated.
func ActorFrom(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey).(string)
	return actor
}

// RoleFrom returns the actor's role from ctx, or "".
func RoleFrom(ctx context.Context) string {
	role, _ := ctx.Value(roleKey).(string)
	return role
}

// Middleware validates the Bearer token on every request and sets the actor in
// the request context. A nil verifier disables authentication entirely (local
// development); publicPaths are served without a token.
func Middleware(verifier *TokenVerifier, publicPaths map[string]bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			token := extractBearer(r)
			if token == "" {
				http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
				return
			}
			subject, role, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "missing or invalid authorization", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), subject, role)))
		})
	}
}

// extractBearer returns the Bearer token from the request, or "" if missing or
// malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
