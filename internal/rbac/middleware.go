package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/unifiedbase/unifiedbase/internal/platform/httpx"
)

// ScopeHeader carries the tenant/application scope of a request. The
// app_identifier query parameter is accepted as a fallback.
const ScopeHeader = "X-App-Identifier"

// ScopeFromRequest extracts the tenant scope, empty for global.
func ScopeFromRequest(r *http.Request) string {
	if scope := strings.TrimSpace(r.Header.Get(ScopeHeader)); scope != "" {
		return scope
	}
	return strings.TrimSpace(r.URL.Query().Get("app_identifier"))
}

// Middleware wires authorization guards for HTTP handlers. Denials respond
// 403 naming the required permission; infrastructure failures respond 503 so
// clients can retry rather than treating them as denials.
type Middleware struct {
	Gate   *Gate
	Logger *slog.Logger
}

// Require ensures the current user holds the given permission.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	return m.guard([]string{perm}, true)
}

// RequireAll ensures the current user holds all of the given permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.guard(perms, true)
}

// RequireAny ensures the current user holds at least one of the given
// permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.guard(perms, false)
}

// RequireSuperuser restricts the route to superusers.
func (m Middleware) RequireSuperuser() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !p.IsSuperUser() {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "superuser required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) guard(perms []string, needAll bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			p := PrincipalFromContext(r.Context())
			if p == nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}

			scope := ScopeFromRequest(r)
			var (
				decision Decision
				err      error
			)
			if needAll {
				decision, err = m.Gate.AuthorizeAll(r.Context(), p, perms, scope)
			} else {
				decision, err = m.Gate.AuthorizeAny(r.Context(), p, perms, scope)
			}
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check failed", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				if errors.Is(err, ErrCatalogUnavailable) {
					w.Header().Set("Retry-After", "5")
					httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "authorization backend unavailable")
					return
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}
			if !decision.Allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
