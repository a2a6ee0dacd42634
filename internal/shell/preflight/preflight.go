// Package preflight probes the external prerequisites of a deployment
// before any multi-step operation commits to them. Probes are bounded
// and never fail hard: a probe error is reported as "not available",
// not raised.
package preflight

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"time"
)

// =============================================================================
// Report
// =============================================================================

// Report holds the three independent prerequisite checks.
type Report struct {
	DockerInstalled  bool `json:"docker_installed"`
	ComposeInstalled bool `json:"compose_installed"`
	NetworkOnline    bool `json:"network_online"`
}

// =============================================================================
// Checker
// =============================================================================

const probeTimeout = 5 * time.Second

// httpProbeEndpoints are well-known hosts tried first for the
// connectivity check. Any HTTP response at all counts as reachability.
var httpProbeEndpoints = []string{
	"https://clients3.google.com/generate_204",
	"https://www.cloudflare.com",
	"https://registry-1.docker.io/v2/",
}

// Pinger reaches the Docker daemon over its API. An answering daemon
// is a stronger signal than the CLI merely being on PATH.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker runs prerequisite probes.
type Checker struct {
	pinger Pinger // may be nil; the docker probe then falls back to exec
	logger *slog.Logger
	client *http.Client
}

// NewChecker creates a preflight checker. pinger may be nil when no
// Docker SDK connection is available.
func NewChecker(pinger Pinger, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		pinger: pinger,
		logger: logger,
		client: &http.Client{Timeout: probeTimeout},
	}
}

// Check runs all three probes. Each is independent; a failed probe is
// swallowed and reported as false.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{
		DockerInstalled:  c.dockerProbe(ctx),
		ComposeInstalled: c.composeProbe(ctx),
		NetworkOnline:    c.networkProbe(ctx),
	}
	c.logger.Info("preflight complete",
		"docker", report.DockerInstalled,
		"compose", report.ComposeInstalled,
		"network", report.NetworkOnline,
	)
	return report
}

// =============================================================================
// Tool Probes
// =============================================================================

// dockerProbe asks the daemon over its API first and falls back to
// the CLI binary when no SDK connection is wired or the ping fails.
func (c *Checker) dockerProbe(ctx context.Context) bool {
	if c.pinger != nil {
		pingCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := c.pinger.Ping(pingCtx)
		cancel()
		if err == nil {
			return true
		}
		c.logger.Debug("docker api ping failed, probing the cli", "error", err)
	}
	return c.binaryProbe(ctx, "docker", "--version")
}

func (c *Checker) binaryProbe(ctx context.Context, bin string, args ...string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, bin, args...).Run() == nil
}

// composeProbe accepts either the compose plugin or the legacy
// standalone binary.
func (c *Checker) composeProbe(ctx context.Context) bool {
	if c.binaryProbe(ctx, "docker", "compose", "version") {
		return true
	}
	return c.binaryProbe(ctx, "docker-compose", "--version")
}

// =============================================================================
// Network Probes
// =============================================================================

// networkProbe walks a layered fallback chain and returns true on the
// first success. Restrictive networks block individual methods while
// others get through; a false negative here would needlessly skip
// image pulls, so every layer gets a chance.
func (c *Checker) networkProbe(ctx context.Context) bool {
	if c.httpProbe(ctx) {
		return true
	}
	if c.dnsProbe(ctx) {
		return true
	}
	if c.pingProbe(ctx) {
		return true
	}
	// Last resort: a registry pull proves the only path that
	// actually matters for deployment.
	return c.binaryProbe(ctx, "docker", "pull", "hello-world")
}

func (c *Checker) httpProbe(ctx context.Context) bool {
	for _, endpoint := range httpProbeEndpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
		if err != nil {
			continue
		}
		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.Debug("http probe failed", "endpoint", endpoint, "error", err)
			continue
		}
		resp.Body.Close()
		// Any response, including 4xx, proves the wire works.
		return true
	}
	return false
}

func (c *Checker) dnsProbe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupHost(ctx, "cloudflare.com")
	return err == nil && len(addrs) > 0
}

func (c *Checker) pingProbe(ctx context.Context) bool {
	return c.binaryProbe(ctx, "ping", "-c", "1", "-W", "2", "1.1.1.1")
}
