package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// =============================================================================
// Daemon Control
// =============================================================================

const daemonBin = "cloudflared"

var ErrReloadFailed = errors.New("tunnel daemon reload failed")

// Daemon validates the ingress configuration and pushes it into a
// running cloudflared, preferring graceful paths over restarts and
// only starting a fresh process when none exists.
type Daemon struct {
	tunnelID string
	logger   *slog.Logger
}

// NewDaemon creates a daemon controller for the named tunnel.
func NewDaemon(tunnelID string, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{tunnelID: tunnelID, logger: logger}
}

// Validate runs the daemon's own config validation subcommand against
// the given file.
func (d *Daemon) Validate(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, daemonBin, "tunnel", "--config", configPath, "ingress", "validate")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ingress validation failed: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

// Reload makes the daemon pick up the current configuration. The
// ladder, most graceful first:
//
//  1. systemctl reload-or-restart
//  2. systemctl restart
//  3. SIGHUP to a running cloudflared process
//  4. start a new daemon process, only if none is running
func (d *Daemon) Reload(ctx context.Context) error {
	if d.systemctl(ctx, "reload-or-restart") {
		return nil
	}
	if d.systemctl(ctx, "restart") {
		return nil
	}

	pid, running := d.findProcess(ctx)
	if running {
		if err := syscall.Kill(pid, syscall.SIGHUP); err == nil {
			d.logger.Info("sent reload signal to tunnel daemon", "pid", pid)
			return nil
		}
	}

	if !running {
		return d.start()
	}
	return ErrReloadFailed
}

func (d *Daemon) systemctl(ctx context.Context, verb string) bool {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := exec.CommandContext(ctx, "systemctl", verb, daemonBin).Run()
	if err == nil {
		d.logger.Info("reloaded tunnel daemon via systemctl", "verb", verb)
		return true
	}
	d.logger.Debug("systemctl path unavailable", "verb", verb, "error", err)
	return false
}

// findProcess locates a running cloudflared via pgrep.
func (d *Daemon) findProcess(ctx context.Context) (int, bool) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, "pgrep", "-x", daemonBin).Output()
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// start launches a detached daemon process for the configured tunnel.
func (d *Daemon) start() error {
	if d.tunnelID == "" {
		return fmt.Errorf("%w: no tunnel id configured and no daemon running", ErrReloadFailed)
	}
	cmd := exec.Command(daemonBin, "tunnel", "run", d.tunnelID)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: could not start daemon: %v", ErrReloadFailed, err)
	}
	// Detach; the daemon outlives this process.
	go cmd.Wait()
	d.logger.Info("started tunnel daemon", "tunnel", d.tunnelID, "pid", cmd.Process.Pid)
	return nil
}
