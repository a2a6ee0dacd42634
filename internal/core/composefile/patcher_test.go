package composefile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTemplate = `name: supabase
services:
  kong:
    container_name: supabase-kong
    image: kong:2.8.1
    ports:
      - 8000:8000
      - "8443:8443"
  studio:
    container_name: supabase-studio
    image: supabase/studio:latest
    ports:
      - "3000:3000"
  db:
    container_name: supabase-db
    image: supabase/postgres:15.1
    ports:
      - 5432:5432
  analytics:
    container_name: supabase-analytics
    image: supabase/logflare:1.4
    ports:
      - 4000:4000
  vector:
    container_name: supabase-vector
    image: timberio/vector:0.28.1
    ports:
      - 9001:9001
`

// =============================================================================
// Port Variable Injection Tests
// =============================================================================

func TestInjectPortVariables_RewritesKnownMappings(t *testing.T) {
	out, changed := InjectPortVariables(sampleTemplate)
	assert.True(t, changed)

	assert.Contains(t, out, `- "${KONG_HTTP_PORT:-8000}:8000"`)
	assert.Contains(t, out, `- "${KONG_HTTPS_PORT:-8443}:8443"`)
	assert.Contains(t, out, `- "${STUDIO_PORT:-3000}:3000"`)
	assert.Contains(t, out, `- "${ANALYTICS_PORT:-4000}:4000"`)
	assert.Contains(t, out, `- "${POSTGRES_PORT:-5432}:5432"`)
}

func TestInjectPortVariables_LeavesUnknownMappings(t *testing.T) {
	out, _ := InjectPortVariables(sampleTemplate)
	// 9001:9001 is not in the rule table and must survive untouched.
	assert.Contains(t, out, "- 9001:9001")
	assert.NotContains(t, out, "${VECTOR")
}

func TestInjectPortVariables_Idempotent(t *testing.T) {
	once, changed := InjectPortVariables(sampleTemplate)
	require.True(t, changed)

	twice, changedAgain := InjectPortVariables(once)
	assert.False(t, changedAgain)
	assert.Equal(t, once, twice)
}

func TestInjectPortVariables_NoKnownMappings(t *testing.T) {
	doc := "services:\n  web:\n    ports:\n      - 9090:80\n"
	out, changed := InjectPortVariables(doc)
	assert.False(t, changed)
	assert.Equal(t, doc, out)
}

func TestInjectPortVariables_QuotingVariants(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"bare", "      - 8000:8000"},
		{"double quoted", `      - "8000:8000"`},
		{"single quoted", "      - '8000:8000'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, changed := InjectPortVariables(tt.line + "\n")
			assert.True(t, changed)
			assert.Contains(t, out, "${KONG_HTTP_PORT:-8000}:8000")
		})
	}
}

// =============================================================================
// Identity Rewrite Tests
// =============================================================================

func TestRewriteIdentity_PrefixesContainerNames(t *testing.T) {
	out, changed := RewriteIdentity(sampleTemplate, "demo-123456")
	assert.True(t, changed)

	assert.Contains(t, out, "container_name: demo-123456-supabase-kong")
	assert.Contains(t, out, "container_name: demo-123456-supabase-studio")
	assert.Contains(t, out, "container_name: demo-123456-supabase-db")
	assert.Contains(t, out, "container_name: demo-123456-supabase-analytics")
	assert.Contains(t, out, "container_name: demo-123456-supabase-vector")
}

func TestRewriteIdentity_SetsProjectName(t *testing.T) {
	out, _ := RewriteIdentity(sampleTemplate, "demo-123456")
	assert.True(t, strings.HasPrefix(out, "name: demo-123456\n"))
	assert.NotContains(t, out, "name: supabase\n")
}

func TestRewriteIdentity_AddsProjectNameWhenMissing(t *testing.T) {
	doc := "services:\n  db:\n    container_name: supabase-db\n"
	out, changed := RewriteIdentity(doc, "demo-123456")
	assert.True(t, changed)
	assert.True(t, strings.HasPrefix(out, "name: demo-123456\n"))
}

func TestRewriteIdentity_Idempotent(t *testing.T) {
	once, changed := RewriteIdentity(sampleTemplate, "demo-123456")
	require.True(t, changed)

	twice, changedAgain := RewriteIdentity(once, "demo-123456")
	assert.False(t, changedAgain)
	assert.Equal(t, once, twice)
}

func TestRewriteIdentity_ThenPortInjectionStillIdempotent(t *testing.T) {
	named, _ := RewriteIdentity(sampleTemplate, "demo-123456")
	patched, _ := InjectPortVariables(named)

	again, changed := InjectPortVariables(patched)
	assert.False(t, changed)
	assert.Equal(t, patched, again)
}

// =============================================================================
// Validation Tests
// =============================================================================

func TestValidatePatched_AcceptsPatchedTemplate(t *testing.T) {
	named, _ := RewriteIdentity(sampleTemplate, "demo-123456")
	patched, _ := InjectPortVariables(named)
	assert.NoError(t, ValidatePatched(patched))
}

func TestValidatePatched_RejectsEmpty(t *testing.T) {
	assert.ErrorIs(t, ValidatePatched("   \n"), ErrEmptyDocument)
}

func TestValidatePatched_RejectsGarbage(t *testing.T) {
	assert.Error(t, ValidatePatched("::: not yaml {{{"))
}
