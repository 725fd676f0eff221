package rbac

import (
	"sort"
	"strings"
)

// expandWildcards returns the concrete permission names implied by any
// wildcard entries in names. The global wildcard *:* expands across the fixed
// resource list; resource:* expands across the fixed action list. The
// originals stay in the set, so downstream matching still accepts the raw
// wildcard forms.
func expandWildcards(names []string) []string {
	var expanded []string
	for _, name := range names {
		switch {
		case name == WildcardAll:
			for _, resource := range WildcardResources {
				for _, action := range Actions {
					expanded = append(expanded, resource+":"+action)
				}
			}
		case strings.HasSuffix(name, ":*"):
			resource := strings.TrimSuffix(name, ":*")
			for _, action := range Actions {
				expanded = append(expanded, resource+":"+action)
			}
		}
	}
	return expanded
}

// normalizeSet deduplicates and sorts permission names so resolved sets
// compare stably across runs.
func normalizeSet(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
