// Package secrets contains pure generation logic for per-project
// credentials, signed API tokens and host-port assignments.
// This is part of the Functional Core - no I/O beyond the system
// entropy source.
package secrets

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// =============================================================================
// Random Strings
// =============================================================================

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomByteCeiling is the largest multiple of the alphabet size that
// fits in a byte. Bytes at or above it are rejected so every character
// is equally likely; a plain modulo would favor the low characters.
const randomByteCeiling = byte(256 - 256%len(alphanumeric))

// RandomString returns a uniformly random alphanumeric string of
// length n. A length of zero yields the empty string.
func RandomString(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		rand.Read(buf)
		for _, b := range buf {
			if b >= randomByteCeiling {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}

// =============================================================================
// Signed API Tokens
// =============================================================================

// TokenIssuer is the iss claim stamped into generated API tokens.
const TokenIssuer = "supabase"

// TokenLifetime is how long generated API tokens stay valid.
const TokenLifetime = 365 * 24 * time.Hour

// SignedToken mints an HS256-signed JWT carrying a role claim, issued
// now and expiring one year out. The stack's gateway verifies these
// against the same signing secret, so the signature is real rather
// than filler.
func SignedToken(role, signingSecret string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"role": role,
		"iss":  TokenIssuer,
		"iat":  now.Unix(),
		"exp":  now.Add(TokenLifetime).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(signingSecret))
}

// =============================================================================
// Port Assignment
// =============================================================================

// portOffset keeps derived ports well above the privileged and
// commonly-used ranges while leaving room for the sibling offsets
// below 65535.
const portOffset = 54000

// PortSet holds the host ports assigned to the stack's externally
// bound services. All values derive from one base port by constant
// offsets, so a PortSet never collides with itself.
type PortSet struct {
	Kong      int // API gateway HTTP
	KongTLS   int // API gateway HTTPS
	Studio    int // dashboard
	Analytics int // log/analytics service
	Postgres  int // database
}

// DerivePorts computes a collision-resistant base port from the low
// digits of the creation timestamp and derives the sibling ports from
// it. Projects created at different times land on different bases.
//
// Example:
//
//	DerivePorts(t) // base 54737 -> {54737, 55180, 55737, 56737, 57737}
func DerivePorts(at time.Time) PortSet {
	base := portOffset + int(at.Unix()%1000)
	return PortSet{
		Kong:      base,
		KongTLS:   base + 443,
		Studio:    base + 1000,
		Analytics: base + 2000,
		Postgres:  base + 3000,
	}
}
