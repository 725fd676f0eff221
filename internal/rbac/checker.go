package rbac

import "strings"

// Check reports whether the resolved set covers the required permission.
// Pure function: superuser passes unconditionally, then exact membership,
// then the resource wildcard and the global wildcard for resource:action
// shaped names.
func Check(set *PermissionSet, required string) bool {
	if set == nil {
		return false
	}
	if set.IsSuperuser {
		return true
	}

	granted := make(map[string]struct{}, len(set.Permissions))
	for _, p := range set.Permissions {
		granted[p] = struct{}{}
	}

	if _, ok := granted[required]; ok {
		return true
	}

	// Wildcard coverage applies only to plain resource:action names.
	// Multi-segment names such as users:roles:assign must match exactly.
	if strings.Count(required, ":") != 1 {
		return false
	}
	resource, _, _ := strings.Cut(required, ":")
	if _, ok := granted[resource+":*"]; ok {
		return true
	}
	if _, ok := granted[WildcardAll]; ok {
		return true
	}
	return false
}

// CheckEach evaluates every required permission independently and returns the
// per-permission verdicts.
func CheckEach(set *PermissionSet, required []string) map[string]bool {
	results := make(map[string]bool, len(required))
	for _, perm := range required {
		results[perm] = Check(set, perm)
	}
	return results
}
