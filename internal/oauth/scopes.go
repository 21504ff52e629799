package oauth

import (
	"strings"
)

// ScopeSet is an ordered list of OAuth scope strings.
type ScopeSet []string

// ParseScopeSet splits a space-delimited scope string as returned by
// authorization servers in the "scope" response parameter.
func ParseScopeSet(s string) ScopeSet {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return ScopeSet(nil).Union(fields)
}

// Contains reports whether scope is part of the set.
func (s ScopeSet) Contains(scope string) bool {
	for _, have := range s {
		if have == scope {
			return true
		}
	}
	return false
}

// Covers reports whether every scope in required is part of s.
// An empty required set is always covered.
func (s ScopeSet) Covers(required ScopeSet) bool {
	for _, scope := range required {
		if !s.Contains(scope) {
			return false
		}
	}
	return true
}

// Missing returns the scopes of required that s does not contain.
func (s ScopeSet) Missing(required ScopeSet) ScopeSet {
	var missing ScopeSet
	for _, scope := range required {
		if !s.Contains(scope) {
			missing = append(missing, scope)
		}
	}
	return missing
}

// Union returns s followed by the scopes of other not yet in s.
// Duplicates are dropped and the receiver is never modified.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	out := make(ScopeSet, 0, len(s)+len(other))
	seen := make(map[string]struct{}, len(s)+len(other))
	for _, list := range []ScopeSet{s, other} {
		for _, scope := range list {
			if scope == "" {
				continue
			}
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			out = append(out, scope)
		}
	}
	return out
}

// Clone returns a copy that shares no memory with s.
func (s ScopeSet) Clone() ScopeSet {
	if s == nil {
		return nil
	}
	out := make(ScopeSet, len(s))
	copy(out, s)
	return out
}

// String returns the space-delimited form used on the wire.
func (s ScopeSet) String() string {
	return strings.Join(s, " ")
}
