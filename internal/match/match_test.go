package match

import "testing"

// TestGlob verifies anchored and floating wildcard segments.
// Params: testing.T for assertions.
// Returns: none.
func TestGlob(t *testing.T) {
	cases := []struct {
		pattern string
		value   string
		want    bool
	}{
		{pattern: "ipv4-unicast", value: "ipv4-unicast", want: true},
		{pattern: "ipv4-unicast", value: "ipv4-unicast2", want: false},
		{pattern: "*", value: "anything", want: true},
		{pattern: "ipv*", value: "ipv6-unicast", want: true},
		{pattern: "*:evpn", value: "srl_nokia-common:evpn", want: true},
		{pattern: "*:evpn", value: "evpn", want: false},
		{pattern: "a*a", value: "a", want: false},
		{pattern: "*-uni*", value: "ipv4-unicast", want: true},
		{pattern: "l3vpn-*-unicast", value: "l3vpn-ipv4-unicast", want: true},
		{pattern: "", value: "", want: false},
	}

	for _, tc := range cases {
		if got := Glob(tc.pattern, tc.value); got != tc.want {
			t.Fatalf("Glob(%q, %q) = %v, want %v", tc.pattern, tc.value, got, tc.want)
		}
	}
}

// TestFamilyMatcher verifies bare and module-prefixed identities.
// Params: testing.T for assertions.
// Returns: none.
func TestFamilyMatcher(t *testing.T) {
	matcher := NewFamilyMatcher(" ipv4-unicast ")
	if matcher.Family() != "ipv4-unicast" {
		t.Fatalf("unexpected family: %q", matcher.Family())
	}

	for _, reported := range []string{"ipv4-unicast", "srl_nokia-common:ipv4-unicast", "openconfig-bgp-types:ipv4-unicast"} {
		if !matcher.Match(reported) {
			t.Fatalf("expected %q to match", reported)
		}
	}
	for _, reported := range []string{"ipv6-unicast", "srl_nokia-common:ipv4-unicast-extra", ""} {
		if matcher.Match(reported) {
			t.Fatalf("did not expect %q to match", reported)
		}
	}

	if NewFamilyMatcher("").Match("") {
		t.Fatalf("empty family must not match")
	}
}
