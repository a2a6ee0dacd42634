// Package composefile contains pure, text-level patch operations for
// the shared compose template. Patching is deliberately textual rather
// than structural: the upstream template evolves and a patch must not
// require full-schema round-trip fidelity to leave unknown fields
// intact. Every operation is idempotent - re-applying an already
// patched document is a no-op.
package composefile

import (
	"fmt"
	"regexp"

	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Port Variable Injection
// =============================================================================

// PortRule maps one literal host:container binding known to the stack
// to the environment variable that should drive it.
type PortRule struct {
	HostPort      int
	ContainerPort int
	EnvVar        string
}

// PortRules is the fixed table of bindings the template ships with.
// Mappings not listed here are left untouched by the patcher.
var PortRules = []PortRule{
	{8000, 8000, "KONG_HTTP_PORT"},
	{8443, 8443, "KONG_HTTPS_PORT"},
	{3000, 3000, "STUDIO_PORT"},
	{4000, 4000, "ANALYTICS_PORT"},
	{5432, 5432, "POSTGRES_PORT"},
}

// InjectPortVariables rewrites literal host:container port mapping
// lines into environment-variable-driven bindings with the original
// literal as fallback. Returns the patched document and whether
// anything changed.
//
//	- "8000:8000"   becomes   - "${KONG_HTTP_PORT:-8000}:8000"
//
// Quoting on the source line is optional. Already-patched lines no
// longer match the literal pattern, so a second run changes nothing.
func InjectPortVariables(doc string) (string, bool) {
	out := doc
	for _, rule := range PortRules {
		spec := fmt.Sprintf("%d:%d", rule.HostPort, rule.ContainerPort)
		if _, err := nat.ParsePortSpec(spec); err != nil {
			continue // rule would not be a valid binding, leave the document alone
		}

		pattern := regexp.MustCompile(
			`(?m)^(\s*-\s*)(['"]?)` + regexp.QuoteMeta(spec) + `(['"]?)(\s*)$`,
		)
		replacement := fmt.Sprintf(`${1}"${%s:-%d}:%d"${4}`,
			rule.EnvVar, rule.HostPort, rule.ContainerPort)
		out = pattern.ReplaceAllString(out, replacement)
	}
	return out, out != doc
}

// =============================================================================
// Identity Rewrite
// =============================================================================

// containerNames lists the generic container names the upstream
// template assigns. The identity rewrite prefixes each with the
// project slug so many tenants can share one Docker host.
var containerNames = []string{
	"supabase-studio",
	"supabase-kong",
	"supabase-auth",
	"supabase-rest",
	"realtime-dev.supabase-realtime",
	"supabase-realtime",
	"supabase-storage",
	"supabase-imgproxy",
	"supabase-meta",
	"supabase-edge-functions",
	"supabase-analytics",
	"supabase-db",
	"supabase-vector",
	"supabase-pooler",
}

var projectNameLine = regexp.MustCompile(`(?m)^name:\s*(\S+)\s*$`)

// RewriteIdentity makes the compose document tenant-unique: every
// known generic container name gains the slug as prefix and the
// top-level compose project name becomes the slug itself. Returns the
// rewritten document and whether anything changed.
//
// The rewrite anchors on container_name lines, so a name that has
// already been prefixed no longer matches and the operation is
// idempotent.
func RewriteIdentity(doc, slug string) (string, bool) {
	out := doc
	for _, name := range containerNames {
		pattern := regexp.MustCompile(
			`(?m)^(\s*container_name:\s*)` + regexp.QuoteMeta(name) + `(\s*)$`,
		)
		out = pattern.ReplaceAllString(out, "${1}"+slug+"-"+name+"${2}")
	}

	if projectNameLine.MatchString(out) {
		out = projectNameLine.ReplaceAllString(out, "name: "+slug)
	} else {
		// Template without a top-level name gets one so compose
		// scopes networks and volumes per tenant.
		out = "name: " + slug + "\n" + out
	}

	return out, out != doc
}
