package provider

import "strings"

// keywordRule maps an action keyword to a capability server.
type keywordRule struct {
	keyword string
	server  string
}

// fallbackRules is the fixed mapping used when the reasoner cannot
// select servers. Order matters: earlier rules rank first.
var fallbackRules = []keywordRule{
	{"file", "filesystem"},
	{"directory", "filesystem"},
	{"folder", "filesystem"},
	{"read", "filesystem"},
	{"write", "filesystem"},
	{"save", "filesystem"},
	{"browser", "browser"},
	{"web", "browser"},
	{"navigate", "browser"},
	{"click", "browser"},
	{"page", "browser"},
	{"url", "browser"},
	{"command", "shell"},
	{"run", "shell"},
	{"install", "shell"},
	{"execute", "shell"},
	{"terminal", "shell"},
	{"script", "shell"},
}

// FallbackSelector maps action keywords to capability servers so the
// select stage never stalls the cycle when the reasoner is unavailable.
type FallbackSelector struct {
	rules    []keywordRule
	defaults []string
}

// NewFallbackSelector builds a selector over the given known servers.
// Rules pointing at servers the capability set does not expose are dropped.
func NewFallbackSelector(known []string) *FallbackSelector {
	knownSet := make(map[string]bool, len(known))
	for _, s := range known {
		knownSet[s] = true
	}
	rules := make([]keywordRule, 0, len(fallbackRules))
	for _, r := range fallbackRules {
		if knownSet[r.server] {
			rules = append(rules, r)
		}
	}
	return &FallbackSelector{
		rules:    rules,
		defaults: append([]string(nil), known...),
	}
}

// Select returns the servers whose keywords appear in the action text,
// or every known server when nothing matches.
func (f *FallbackSelector) Select(action string) []string {
	lower := strings.ToLower(action)
	seen := make(map[string]bool)
	var servers []string
	for _, r := range f.rules {
		if strings.Contains(lower, r.keyword) && !seen[r.server] {
			seen[r.server] = true
			servers = append(servers, r.server)
		}
	}
	if len(servers) == 0 {
		return append([]string(nil), f.defaults...)
	}
	return servers
}
