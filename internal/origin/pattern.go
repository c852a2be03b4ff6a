package origin

import (
	"net/url"
	"regexp"
	"strings"
)

// schemePattern matches patterns that spell out a scheme, e.g.
// "http://localhost:3000" or "https://*.contoso.com".
var schemePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z\d+.-]*://`)

// MatchHost reports whether host matches pattern label by label. A single "*"
// label may stand in for exactly one host label, but never for the last one.
//
//	MatchHost("*.teams.example.com", "a.teams.example.com")      == true
//	MatchHost("test.*.teams.example.com", "test.a.teams.example.com") == true
//	MatchHost("teams.example.com", "team.example.com")           == false
func MatchHost(pattern, host string) bool {
	patternLabels := strings.Split(pattern, ".")
	hostLabels := strings.Split(host, ".")
	if len(patternLabels) != len(hostLabels) {
		return false
	}

	usedWildcard := false
	for i := range patternLabels {
		if patternLabels[i] == hostLabels[i] {
			continue
		}
		if patternLabels[i] != "*" {
			return false
		}
		if i == len(patternLabels)-1 || usedWildcard {
			return false
		}
		usedWildcard = true
	}
	return true
}

// IsValidPattern reports whether pattern carries an explicit scheme and so can
// be used as an additional origin.
func IsValidPattern(pattern string) bool {
	return schemePattern.MatchString(pattern)
}

// matchFull tests u against a "scheme://hostpattern" pattern. A URL without a
// host only needs the scheme to match.
func matchFull(pattern string, u *url.URL) bool {
	if !IsValidPattern(pattern) {
		return false
	}
	scheme, host, _ := strings.Cut(pattern, "://")
	if !strings.EqualFold(u.Scheme, scheme) {
		return false
	}
	return u.Host == "" || MatchHost(host, u.Host)
}
