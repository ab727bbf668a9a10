// Package fraud normalizes user identities so self-referral under an email
// alias is caught. This folds the well-known "+tag" aliasing trick only; it
// is a heuristic, not a KYC system, and makes no attempt at dot-folding,
// domain equivalence, or device fingerprinting.
package fraud

import "strings"

// NormalizeIdentity lower-cases an email and strips a "+tag" local-part
// suffix, returning local@domain. The second return is false when the input
// is not a usable email address.
func NormalizeIdentity(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "", false
	}

	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus >= 0 {
		local = local[:plus]
	}
	if local == "" {
		return "", false
	}
	return local + "@" + domain, true
}

// SameIdentity reports whether two raw emails normalize to one identity.
func SameIdentity(a, b string) bool {
	na, okA := NormalizeIdentity(a)
	nb, okB := NormalizeIdentity(b)
	return okA && okB && na == nb
}
