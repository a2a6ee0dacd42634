// Package exposure reconciles a project's public reachability: one
// DNS CNAME record at the provider and one ingress rule in the tunnel
// daemon's shared configuration. Both live outside this process and
// may be touched by other tooling, so every mutation reads, merges
// and rewrites rather than assuming the in-memory view is current,
// and every mutation is safe to re-run.
package exposure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stackhost/stackhost/internal/core/domain"
	"github.com/stackhost/stackhost/internal/shell/dns"
	"github.com/stackhost/stackhost/internal/shell/tunnel"
)

// =============================================================================
// Manager
// =============================================================================

var (
	ErrNoServiceTarget = errors.New("no internal service target: need an internal URL, a configured proxy URL, or a port")

	// ErrNoProvider is returned when DNS reconciliation runs without a
	// configured provider. The manager can be constructed without one
	// so the rest of the system starts; exposure then fails per-call.
	ErrNoProvider = errors.New("dns provider not configured")
)

// Exposure is the pair that makes a project publicly reachable.
type Exposure struct {
	Hostname  string `json:"hostname"`
	PublicURL string `json:"public_url"`
}

// Reloader pushes configuration changes into the tunnel daemon.
type Reloader interface {
	Validate(ctx context.Context, configPath string) error
	Reload(ctx context.Context) error
}

// Manager reconciles DNS and ingress state for project hostnames.
type Manager struct {
	provider         dns.Provider
	config           *tunnel.ConfigFile
	daemon           Reloader
	baseDomain       string
	tunnelID         string
	internalProxyURL string // optional global reverse-proxy target
	logger           *slog.Logger
}

// NewManager creates an exposure manager.
func NewManager(provider dns.Provider, config *tunnel.ConfigFile, daemon Reloader, baseDomain, tunnelID, internalProxyURL string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider:         provider,
		config:           config,
		daemon:           daemon,
		baseDomain:       baseDomain,
		tunnelID:         tunnelID,
		internalProxyURL: internalProxyURL,
		logger:           logger,
	}
}

// tunnelTarget is the fixed CNAME target every exposed hostname
// points at; the tunnel fans requests out by ingress hostname.
func (m *Manager) tunnelTarget() string {
	return m.tunnelID + ".cfargotunnel.com"
}

// =============================================================================
// EnsureExposure
// =============================================================================

// EnsureExposure makes the project reachable at its canonical
// hostname. It reconciles the DNS record (create if absent, update if
// wrong, leave if correct) and the ingress rule set (replace the
// hostname's rule, keep exactly one trailing catch-all), then asks
// the daemon to pick up the change. Called twice with the same
// arguments it converges to the same single record and single rule.
func (m *Manager) EnsureExposure(ctx context.Context, name, slug string, port int, internalURL string) (Exposure, error) {
	ident := slug
	if ident == "" {
		ident = name
	}
	hostname := domain.Hostname(ident, m.baseDomain)

	target, err := m.serviceTarget(port, internalURL)
	if err != nil {
		return Exposure{}, err
	}

	if err := m.reconcileDNS(ctx, hostname); err != nil {
		return Exposure{}, err
	}
	if err := m.reconcileIngress(ctx, hostname, target); err != nil {
		return Exposure{}, err
	}

	exp := Exposure{Hostname: hostname, PublicURL: domain.PublicURL(hostname)}
	m.logger.Info("exposure ensured", "hostname", exp.Hostname, "target", target)
	return exp, nil
}

// serviceTarget resolves the internal address the hostname should
// route to. Precedence: explicit URL, then the globally configured
// reverse proxy, then the project's own port on loopback.
func (m *Manager) serviceTarget(port int, internalURL string) (string, error) {
	switch {
	case internalURL != "":
		return internalURL, nil
	case m.internalProxyURL != "":
		return m.internalProxyURL, nil
	case port > 0:
		return fmt.Sprintf("http://127.0.0.1:%d", port), nil
	default:
		return "", ErrNoServiceTarget
	}
}

func (m *Manager) reconcileDNS(ctx context.Context, hostname string) error {
	if m.provider == nil {
		return ErrNoProvider
	}
	target := m.tunnelTarget()

	rec, err := m.provider.FindRecord(ctx, hostname)
	if err != nil {
		return fmt.Errorf("dns lookup for %s failed: %w", hostname, err)
	}

	switch {
	case rec == nil:
		if _, err := m.provider.CreateCNAME(ctx, hostname, target, true); err != nil {
			return fmt.Errorf("dns create for %s failed: %w", hostname, err)
		}
	// Proxied only counts as drift on backends that have the flag.
	case rec.Content != target || (m.provider.Proxies() && !rec.Proxied):
		if err := m.provider.UpdateCNAME(ctx, rec.ID, hostname, target, true); err != nil {
			return fmt.Errorf("dns update for %s failed: %w", hostname, err)
		}
	default:
		m.logger.Debug("dns record already correct", "hostname", hostname)
	}
	return nil
}

func (m *Manager) reconcileIngress(ctx context.Context, hostname, target string) error {
	doc, err := m.config.Load()
	if err != nil {
		return err
	}
	doc.Upsert(hostname, target)
	if err := m.config.Save(doc); err != nil {
		return err
	}

	// The document on disk is now correct; validation or reload
	// trouble degrades to a warning rather than undoing the write.
	if err := m.daemon.Validate(ctx, m.config.Path()); err != nil {
		m.logger.Warn("ingress validation failed", "error", err)
		return nil
	}
	if err := m.daemon.Reload(ctx); err != nil {
		m.logger.Warn("tunnel daemon reload failed", "error", err)
	}
	return nil
}

// =============================================================================
// CleanupExposure
// =============================================================================

// CleanupExposure tears down the hostname's DNS record and ingress
// rule. Each step is independently best-effort: a DNS failure never
// blocks the ingress cleanup or vice versa, and absence of either
// resource is success, not failure.
func (m *Manager) CleanupExposure(ctx context.Context, slug string) error {
	hostname := domain.Hostname(slug, m.baseDomain)
	var errs []error

	if err := m.cleanupDNS(ctx, hostname); err != nil {
		m.logger.Warn("dns cleanup failed", "hostname", hostname, "error", err)
		errs = append(errs, err)
	}
	if err := m.cleanupIngress(ctx, hostname); err != nil {
		m.logger.Warn("ingress cleanup failed", "hostname", hostname, "error", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (m *Manager) cleanupDNS(ctx context.Context, hostname string) error {
	if m.provider == nil {
		return ErrNoProvider
	}
	rec, err := m.provider.FindRecord(ctx, hostname)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil // nothing to delete
	}
	return m.provider.DeleteRecord(ctx, rec.ID)
}

func (m *Manager) cleanupIngress(ctx context.Context, hostname string) error {
	doc, err := m.config.Load()
	if err != nil {
		return err
	}
	if !doc.Remove(hostname) {
		return nil // no rule, nothing to persist
	}
	if err := m.config.Save(doc); err != nil {
		return err
	}
	if err := m.daemon.Reload(ctx); err != nil {
		m.logger.Warn("tunnel daemon reload failed after cleanup", "error", err)
	}
	return nil
}
