// Package dns drives the DNS provider's HTTP API for a project's
// public hostname. This is part of the Imperative Shell.
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// =============================================================================
// Provider Interface
// =============================================================================

// Record is a provider-neutral view of one DNS record.
type Record struct {
	ID      string
	Name    string // fully qualified hostname
	Type    string // "CNAME"
	Content string // record target
	Proxied bool
}

// Provider abstracts the DNS API. A hostname has at most one record;
// FindRecord returns nil without error when none exists.
type Provider interface {
	FindRecord(ctx context.Context, fqdn string) (*Record, error)
	CreateCNAME(ctx context.Context, fqdn, target string, proxied bool) (*Record, error)
	UpdateCNAME(ctx context.Context, recordID, fqdn, target string, proxied bool) error
	DeleteRecord(ctx context.Context, recordID string) error

	// Proxies reports whether the backend supports proxied records.
	// Backends without the concept always return records unproxied;
	// reconciliation must not read that as drift.
	Proxies() bool
}

// =============================================================================
// Errors
// =============================================================================

var ErrMissingCredentials = errors.New("dns provider credentials missing")

// APIError is a non-2xx provider response. The raw body is surfaced
// so the operator sees exactly what the provider complained about.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.Status, e.Body)
}

// =============================================================================
// Factory
// =============================================================================

// Config selects and authenticates a DNS provider backend.
type Config struct {
	Provider string // "cloudflare" (default) or "digitalocean"
	APIToken string
	ZoneID   string // Cloudflare zone id
	Zone     string // DigitalOcean domain name, e.g. "example.com"
}

// NewProvider creates the configured DNS provider client.
func NewProvider(cfg Config, logger *slog.Logger) (Provider, error) {
	if cfg.APIToken == "" {
		return nil, ErrMissingCredentials
	}
	switch cfg.Provider {
	case "", "cloudflare":
		if cfg.ZoneID == "" {
			return nil, fmt.Errorf("%w: cloudflare zone id", ErrMissingCredentials)
		}
		return NewCloudflareProvider(cfg.APIToken, cfg.ZoneID, logger), nil
	case "digitalocean":
		if cfg.Zone == "" {
			return nil, fmt.Errorf("%w: digitalocean domain", ErrMissingCredentials)
		}
		return NewDigitalOceanProvider(cfg.APIToken, cfg.Zone, logger), nil
	default:
		return nil, fmt.Errorf("unsupported dns provider: %s", cfg.Provider)
	}
}
