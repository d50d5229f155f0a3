// Package anonymous implements the anonymous-mode header allow-list: when
// enabled, only a configured set of client header names is forwarded
// upstream.
package anonymous

import "strings"

// Policy decides whether a given header name may be forwarded when
// anonymous mode is active.
type Policy struct {
	enabled bool
	allow   map[string]struct{}
}

// New builds a Policy. names are matched case-insensitively; enabled
// controls whether the allow-list is consulted at all (is_anonymous_enabled).
func New(enabled bool, names []string) *Policy {
	allow := make(map[string]struct{}, len(names))
	for _, n := range names {
		allow[strings.ToLower(n)] = struct{}{}
	}
	return &Policy{enabled: enabled, allow: allow}
}

// Enabled reports whether anonymous mode is active (is_anonymous_enabled).
func (p *Policy) Enabled() bool {
	return p != nil && p.enabled
}

// Allowed reports whether header name may be forwarded. When anonymous
// mode is disabled every header is allowed (anonymous_search is only
// consulted when enabled, per spec.md §4.E step 5).
func (p *Policy) Allowed(name string) bool {
	if !p.Enabled() {
		return true
	}
	_, ok := p.allow[strings.ToLower(name)]
	return ok
}
