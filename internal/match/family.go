package match

import "strings"

// FamilyMatcher matches afi-safi names reported by a device against one configured family.
// Params: family plain name ("ipv4-unicast") or a glob.
// Returns: matcher accepting the bare name and YANG-module-prefixed identities.
type FamilyMatcher struct {
	family   string
	patterns []Pattern
}

// NewFamilyMatcher builds a matcher for family.
// Params: family configured name; "*" inside it is treated as a glob.
// Returns: matcher; an empty family matches nothing.
func NewFamilyMatcher(family string) FamilyMatcher {
	name := strings.TrimSpace(family)
	matcher := FamilyMatcher{family: name}
	for _, glob := range []string{name, "*:" + name} {
		if compiled, ok := Compile(glob); ok && name != "" {
			matcher.patterns = append(matcher.patterns, compiled)
		}
	}
	return matcher
}

// Family returns the configured family name.
// Params: none.
// Returns: family name.
func (m FamilyMatcher) Family() string {
	return m.family
}

// Match reports whether reported identity belongs to the configured family.
// Params: reported afi-safi-name, e.g. "srl_nokia-common:ipv4-unicast".
// Returns: true on match.
func (m FamilyMatcher) Match(reported string) bool {
	value := strings.TrimSpace(reported)
	for _, pattern := range m.patterns {
		if pattern.Match(value) {
			return true
		}
	}
	return false
}
