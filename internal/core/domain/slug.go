package domain

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a name to a URL-safe slug.
//
// The transformation rules are:
//   - Lowercase letters (a-z), digits (0-9) and hyphens (-) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces are converted to hyphens
//   - All other characters are removed
//
// This is a pure function with no side effects.
//
// Example:
//
//	Slugify("Hello World")  // returns "hello-world"
//	Slugify("My App 2.0!")  // returns "my-app-20"
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r == ' ':
			b.WriteByte('-')
		}
		// All other characters are dropped
	}
	return b.String()
}

// DeriveSlug derives the immutable project slug from the project name
// and its creation timestamp. The timestamp suffix keeps slugs unique
// across projects that share a name.
//
// Example:
//
//	DeriveSlug("Demo", t) // returns "demo-483920" when t's unix time ends in 483920
func DeriveSlug(name string, at time.Time) string {
	base := Slugify(name)
	if base == "" {
		base = "project"
	}
	return fmt.Sprintf("%s-%06d", base, at.Unix()%1000000)
}

// =============================================================================
// Hostname Derivation
// =============================================================================

// SanitizeHost maps a slug to a DNS-label-safe form. Unlike Slugify it
// never drops characters: anything outside [a-z0-9-] becomes a hyphen,
// so the output length always matches the input length.
//
// Example:
//
//	SanitizeHost("My Proj_2!") // returns "my-proj-2-"
func SanitizeHost(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Hostname computes the canonical public hostname for a project slug
// under the given base domain.
func Hostname(slug, baseDomain string) string {
	return SanitizeHost(slug) + "." + baseDomain
}

// PublicURL returns the externally reachable URL for a hostname.
// Traffic always terminates TLS at the tunnel edge.
func PublicURL(hostname string) string {
	return "https://" + hostname
}
