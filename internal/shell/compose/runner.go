package compose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// =============================================================================
// Runner
// =============================================================================

// Default bounds for external invocations. Image pulls are the slow
// path; everything else should finish well inside its window.
const (
	DefaultUpTimeout   = 10 * time.Minute
	DefaultPullTimeout = 15 * time.Minute
	DefaultStopTimeout = 3 * time.Minute
	DefaultDownTimeout = 5 * time.Minute
	DefaultPSTimeout   = 30 * time.Second

	// DefaultMaxOutput caps captured subprocess output. A runaway
	// tool must not exhaust memory.
	DefaultMaxOutput = 2 * 1024 * 1024
)

// Runner invokes the docker compose CLI for a project directory,
// always scoped with -p so tenants never collide on compose project
// state.
type Runner struct {
	logger    *slog.Logger
	bin       string
	maxOutput int
}

// NewRunner creates a compose CLI runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:    logger,
		bin:       "docker",
		maxOutput: DefaultMaxOutput,
	}
}

// =============================================================================
// Stack Operations
// =============================================================================

// Up brings the stack up detached, creating anything missing.
func (r *Runner) Up(ctx context.Context, dir, project string) error {
	_, err := r.run(ctx, dir, DefaultUpTimeout, "compose", "-p", project, "up", "-d")
	return err
}

// Stop stops containers without removing them.
func (r *Runner) Stop(ctx context.Context, dir, project string) error {
	_, err := r.run(ctx, dir, DefaultStopTimeout, "compose", "-p", project, "stop")
	return err
}

// Down stops and removes containers, optionally with their volumes.
func (r *Runner) Down(ctx context.Context, dir, project string, removeVolumes bool) error {
	args := []string{"compose", "-p", project, "down"}
	if removeVolumes {
		args = append(args, "-v")
	}
	_, err := r.run(ctx, dir, DefaultDownTimeout, args...)
	return err
}

// Pull fetches the stack's images. Callers treat a failure here as
// degraded rather than fatal: deployment proceeds with cached images.
func (r *Runner) Pull(ctx context.Context, dir, project string) error {
	_, err := r.run(ctx, dir, DefaultPullTimeout, "compose", "-p", project, "pull")
	return err
}

// =============================================================================
// Status Query
// =============================================================================

// ContainerStatus is one line of compose ps output.
type ContainerStatus struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Status  string `json:"Status"`
}

// Running reports whether the container is up.
func (c ContainerStatus) Running() bool {
	return strings.EqualFold(c.State, "running")
}

// PS queries container status for the stack. compose emits one JSON
// object per line.
func (r *Runner) PS(ctx context.Context, dir, project string) ([]ContainerStatus, error) {
	out, err := r.run(ctx, dir, DefaultPSTimeout, "compose", "-p", project, "ps", "--format", "json")
	if err != nil {
		return nil, err
	}
	return parsePSOutput(out), nil
}

// parsePSOutput decodes per-line JSON status records. Unparseable
// lines are skipped; the CLI interleaves warnings with records.
func parsePSOutput(out string) []ContainerStatus {
	var statuses []ContainerStatus
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var cs ContainerStatus
		if err := json.Unmarshal([]byte(line), &cs); err != nil {
			continue
		}
		statuses = append(statuses, cs)
	}
	return statuses
}

// =============================================================================
// Subprocess Execution
// =============================================================================

// cappedBuffer aborts the write stream once the limit is hit.
type cappedBuffer struct {
	buf        bytes.Buffer
	limit      int
	overflowed bool
}

var errOutputLimit = errors.New("output limit exceeded")

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if b.buf.Len()+len(p) > b.limit {
		b.overflowed = true
		return 0, errOutputLimit
	}
	return b.buf.Write(p)
}

// run executes one CLI invocation with a bounded deadline and capped
// output, classifying any failure.
func (r *Runner) run(ctx context.Context, dir string, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := fmt.Sprintf("%s %s", r.bin, strings.Join(args, " "))
	buf := &cappedBuffer{limit: r.maxOutput}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Dir = dir
	cmd.Stdout = buf
	cmd.Stderr = buf

	r.logger.Debug("running compose command", "cmd", op, "dir", dir)

	err := cmd.Run()
	output := buf.buf.String()
	if err == nil {
		return output, nil
	}

	switch {
	case buf.overflowed:
		return output, overflowError(op, r.maxOutput)
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return output, timeoutError(op, output)
	default:
		if output == "" {
			output = err.Error()
		}
		cerr := Classify(output)
		r.logger.Warn("compose command failed", "cmd", op, "kind", cerr.Kind)
		return output, cerr
	}
}
