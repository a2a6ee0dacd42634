// Package compose drives the docker compose CLI for project stacks.
// This is part of the Imperative Shell - it spawns subprocesses and
// maps their opaque failures onto actionable categories.
package compose

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Kinds
// =============================================================================

// Kind classifies a compose CLI failure into an actionable category.
type Kind string

const (
	KindTimeout        Kind = "timeout"
	KindOutputExceeded Kind = "output_exceeded"
	KindNetwork        Kind = "network"
	KindPermission     Kind = "permission"
	KindNotInstalled   Kind = "not_installed"
	KindImageNotFound  Kind = "image_not_found"
	KindGeneric        Kind = "generic"
)

var ErrCommandFailed = errors.New("compose command failed")

// CommandError carries the classified failure of one CLI invocation.
type CommandError struct {
	Kind        Kind
	Remediation string // user-facing message with a concrete next step
	Raw         string // captured tool output, possibly truncated
}

func (e *CommandError) Error() string {
	return e.Remediation
}

func (e *CommandError) Unwrap() error {
	return ErrCommandFailed
}

// =============================================================================
// Classification Table
// =============================================================================

// classifier pairs a predicate over raw tool output with the category
// and remediation it maps to. The table is evaluated top-down; order
// matters because later predicates are broader.
type classifier struct {
	match       func(output string) bool
	kind        Kind
	remediation string
}

func containsAny(subs ...string) func(string) bool {
	return func(output string) bool {
		lower := strings.ToLower(output)
		for _, s := range subs {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}

var classifiers = []classifier{
	{
		match:       containsAny("executable file not found", "command not found", "docker: not found"),
		kind:        KindNotInstalled,
		remediation: "Docker is not installed or not on PATH. Install Docker and the compose plugin, then retry.",
	},
	{
		match:       containsAny("permission denied", "got permission denied", "dial unix /var/run/docker.sock"),
		kind:        KindPermission,
		remediation: "Permission denied talking to the Docker daemon. Add the service user to the docker group or run with elevated privileges.",
	},
	{
		match:       containsAny("manifest unknown", "pull access denied", "repository does not exist", "no such image"),
		kind:        KindImageNotFound,
		remediation: "A required image could not be found in the registry. Check the image tags in the compose file and registry credentials.",
	},
	{
		match:       containsAny("no such host", "temporary failure in name resolution", "i/o timeout", "tls handshake timeout", "network is unreachable", "connection refused"),
		kind:        KindNetwork,
		remediation: "A network or DNS failure interrupted the operation. Check outbound connectivity and retry.",
	},
}

// Classify maps raw CLI output onto a CommandError. Anything the table
// does not recognize becomes a generic deployment failure carrying the
// raw message.
func Classify(output string) *CommandError {
	for _, c := range classifiers {
		if c.match(output) {
			return &CommandError{Kind: c.kind, Remediation: c.remediation, Raw: output}
		}
	}
	return &CommandError{
		Kind:        KindGeneric,
		Remediation: fmt.Sprintf("deployment failed: %s", strings.TrimSpace(output)),
		Raw:         output,
	}
}

// classifyTimeout and classifyOverflow cover the two failure modes the
// runner detects itself rather than reading from tool output.

func timeoutError(op string, raw string) *CommandError {
	return &CommandError{
		Kind:        KindTimeout,
		Remediation: fmt.Sprintf("%s timed out. The operation may still be running in the background; check `docker compose ps` and retry.", op),
		Raw:         raw,
	}
}

func overflowError(op string, limit int) *CommandError {
	return &CommandError{
		Kind:        KindOutputExceeded,
		Remediation: fmt.Sprintf("%s produced more than %d bytes of output and was aborted. Inspect the stack logs directly with `docker compose logs`.", op, limit),
	}
}
