package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
	"github.com/unifiedbase/unifiedbase/internal/rbac"
)

// IdentitySyncer upserts the local user record for a verified token and
// returns the principal for authorization checks.
type IdentitySyncer interface {
	SyncFromClaims(ctx context.Context, claims *Claims) (rbac.Principal, error)
}

// Middleware authenticates requests with provider bearer tokens.
type Middleware struct {
	Verifier *Verifier
	Identity IdentitySyncer
	Logger   *slog.Logger
}

// Authenticate verifies the bearer token, syncs the local user record and
// stores the principal in the request context. Requests without a valid
// token are rejected with 401.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		claims, err := m.Verifier.Verify(token)
		if err != nil {
			m.Logger.Debug("token rejected", slog.Any("error", err))
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
			return
		}
		principal, err := m.Identity.SyncFromClaims(r.Context(), claims)
		if err != nil {
			m.Logger.Error("identity sync", slog.String("subject", claims.Subject), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		ctx := rbac.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}
