package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Decision is the terminal outcome of an authorization check. Missing lists
// the requested permission names the user lacks; internal role or permission
// IDs are never exposed.
type Decision struct {
	Allowed bool
	Missing []string
}

// Reason renders the denial reason for client consumption.
func (d Decision) Reason() string {
	if d.Allowed {
		return ""
	}
	return fmt.Sprintf("missing permission: %s", strings.Join(d.Missing, ", "))
}

// Gate composes the resolver and checker into a request-scoped guard. It is
// stateless across calls except for the cache the resolver delegates to.
type Gate struct {
	resolver *Resolver
	metrics  Metrics
}

// NewGate constructs a Gate. metrics may be nil.
func NewGate(resolver *Resolver, metrics Metrics) *Gate {
	return &Gate{resolver: resolver, metrics: metrics}
}

// Authorize decides whether the principal holds the required permission in
// the given scope. Superusers short-circuit without touching the resolver.
// Infrastructure failures return an error, never a denial.
func (g *Gate) Authorize(ctx context.Context, p Principal, required string, scope string) (Decision, error) {
	return g.authorize(ctx, p, []string{required}, scope, true)
}

// AuthorizeAll requires every listed permission.
func (g *Gate) AuthorizeAll(ctx context.Context, p Principal, required []string, scope string) (Decision, error) {
	return g.authorize(ctx, p, required, scope, true)
}

// AuthorizeAny requires at least one of the listed permissions. On denial,
// Missing lists all of them.
func (g *Gate) AuthorizeAny(ctx context.Context, p Principal, required []string, scope string) (Decision, error) {
	return g.authorize(ctx, p, required, scope, false)
}

func (g *Gate) authorize(ctx context.Context, p Principal, required []string, scope string, needAll bool) (Decision, error) {
	if p == nil {
		return g.decide(Decision{Allowed: false, Missing: required}), nil
	}
	if p.IsSuperUser() {
		return g.decide(Decision{Allowed: true}), nil
	}

	set, err := g.resolver.Resolve(ctx, p.GetID(), scope)
	if err != nil {
		return Decision{}, err
	}

	results := CheckEach(set, required)
	var missing []string
	granted := 0
	for _, perm := range required {
		if results[perm] {
			granted++
		} else {
			missing = append(missing, perm)
		}
	}

	if needAll {
		if len(missing) == 0 {
			return g.decide(Decision{Allowed: true}), nil
		}
		return g.decide(Decision{Allowed: false, Missing: missing}), nil
	}
	if granted > 0 {
		return g.decide(Decision{Allowed: true}), nil
	}
	return g.decide(Decision{Allowed: false, Missing: required}), nil
}

func (g *Gate) decide(d Decision) Decision {
	if g.metrics != nil {
		g.metrics.AuthzDecision(d.Allowed)
	}
	return d
}
