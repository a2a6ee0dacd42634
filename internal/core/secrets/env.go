package secrets

import (
	"fmt"
	"time"
)

// =============================================================================
// Default Environment Generation
// =============================================================================

// Environment key names shared with the lifecycle manager and the
// compose template port table.
const (
	KeyPostgresPassword = "POSTGRES_PASSWORD"
	KeyJWTSecret        = "JWT_SECRET"
	KeyAnonKey          = "ANON_KEY"
	KeyServiceRoleKey   = "SERVICE_ROLE_KEY"
	KeyDashboardPass    = "DASHBOARD_PASSWORD"
	KeyKongHTTPPort     = "KONG_HTTP_PORT"
	KeyKongHTTPSPort    = "KONG_HTTPS_PORT"
	KeyStudioPort       = "STUDIO_PORT"
	KeyAnalyticsPort    = "ANALYTICS_PORT"
	KeyPostgresPort     = "POSTGRES_PORT"
	KeyPublicHostname   = "PUBLIC_HOSTNAME"
	KeyPublicURL        = "PUBLIC_URL"
)

// DefaultEnvironment produces the full environment set for a freshly
// created project: generated secrets, signed anon/service tokens, the
// derived port set, and the fixed operational defaults the stack's
// sub-services expect. Keys are stable; values involving secrets are
// random per call.
func DefaultEnvironment(projectName, slug string, ports PortSet, now time.Time) (map[string]string, error) {
	jwtSecret := RandomString(40)

	anonKey, err := SignedToken("anon", jwtSecret, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign anon token: %w", err)
	}
	serviceKey, err := SignedToken("service_role", jwtSecret, now)
	if err != nil {
		return nil, fmt.Errorf("failed to sign service_role token: %w", err)
	}

	env := map[string]string{
		// Secrets
		KeyPostgresPassword: RandomString(32),
		KeyJWTSecret:        jwtSecret,
		KeyAnonKey:          anonKey,
		KeyServiceRoleKey:   serviceKey,
		KeyDashboardPass:    RandomString(16),
		"SECRET_KEY_BASE":   RandomString(64),
		"VAULT_ENC_KEY":     RandomString(32),
		"LOGFLARE_PUBLIC_ACCESS_TOKEN":  RandomString(32),
		"LOGFLARE_PRIVATE_ACCESS_TOKEN": RandomString(32),

		// Derived ports
		KeyKongHTTPPort:  fmt.Sprintf("%d", ports.Kong),
		KeyKongHTTPSPort: fmt.Sprintf("%d", ports.KongTLS),
		KeyStudioPort:    fmt.Sprintf("%d", ports.Studio),
		KeyAnalyticsPort: fmt.Sprintf("%d", ports.Analytics),
		KeyPostgresPort:  fmt.Sprintf("%d", ports.Postgres),
		"POOLER_PROXY_PORT_TRANSACTION": "6543",

		// Database
		"POSTGRES_HOST": "db",
		"POSTGRES_DB":   "postgres",

		// Gateway / API
		"JWT_EXPIRY":       "3600",
		"API_EXTERNAL_URL": fmt.Sprintf("http://localhost:%d", ports.Kong),
		"PGRST_DB_SCHEMAS": "public,storage,graphql_public",

		// Auth service
		"SITE_URL":                 fmt.Sprintf("http://localhost:%d", ports.Studio),
		"ADDITIONAL_REDIRECT_URLS": "",
		"DISABLE_SIGNUP":           "false",
		"ENABLE_EMAIL_SIGNUP":      "true",
		"ENABLE_EMAIL_AUTOCONFIRM": "true",
		"ENABLE_PHONE_SIGNUP":      "true",
		"ENABLE_PHONE_AUTOCONFIRM": "true",
		"ENABLE_ANONYMOUS_USERS":   "false",

		// Mailer
		"SMTP_ADMIN_EMAIL":           "admin@example.com",
		"SMTP_HOST":                  "supabase-mail",
		"SMTP_PORT":                  "2500",
		"SMTP_USER":                  "fake_mail_user",
		"SMTP_PASS":                  "fake_mail_password",
		"SMTP_SENDER_NAME":           "fake_sender",
		"MAILER_URLPATHS_CONFIRMATION": "/auth/v1/verify",
		"MAILER_URLPATHS_INVITE":       "/auth/v1/verify",
		"MAILER_URLPATHS_RECOVERY":     "/auth/v1/verify",
		"MAILER_URLPATHS_EMAIL_CHANGE": "/auth/v1/verify",

		// Studio
		"DASHBOARD_USERNAME":          "supabase",
		"STUDIO_DEFAULT_ORGANIZATION": projectName,
		"STUDIO_DEFAULT_PROJECT":      projectName,
		"SUPABASE_PUBLIC_URL":         fmt.Sprintf("http://localhost:%d", ports.Kong),

		// Storage / image proxy
		"IMGPROXY_ENABLE_WEBP_DETECTION": "true",

		// Edge functions
		"FUNCTIONS_VERIFY_JWT": "false",

		// Connection pooler
		"POOLER_TENANT_ID":         slug,
		"POOLER_DEFAULT_POOL_SIZE": "20",
		"POOLER_MAX_CLIENT_CONN":   "100",
		"POOLER_DB_POOL_SIZE":      "5",

		// Analytics
		"DOCKER_SOCKET_LOCATION": "/var/run/docker.sock",
		"GOOGLE_PROJECT_ID":      "GOOGLE_PROJECT_ID",
		"GOOGLE_PROJECT_NUMBER":  "GOOGLE_PROJECT_NUMBER",
	}

	return env, nil
}
