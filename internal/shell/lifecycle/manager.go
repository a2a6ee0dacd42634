// Package lifecycle orchestrates the full life of a project: create,
// deploy, pause, delete. It is the Imperative Shell's top layer, tying
// the store, the compose runner, preflight checks, and network
// exposure together. Every public operation returns a uniform result
// and never panics on external failure.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/stackhost/stackhost/internal/core/composefile"
	"github.com/stackhost/stackhost/internal/core/domain"
	"github.com/stackhost/stackhost/internal/core/secrets"
	"github.com/stackhost/stackhost/internal/shell/docker"
	"github.com/stackhost/stackhost/internal/shell/exposure"
	"github.com/stackhost/stackhost/internal/shell/preflight"
	"github.com/stackhost/stackhost/internal/shell/store"
)

// ComposeFileName is the compose file expected inside every project
// directory after template materialization.
const ComposeFileName = "docker-compose.yml"

// EnvFileName is the environment file compose reads alongside the
// compose file.
const EnvFileName = ".env"

// =============================================================================
// Collaborator Interfaces
// =============================================================================

// ComposeRunner drives the compose CLI for one project directory.
type ComposeRunner interface {
	Up(ctx context.Context, dir, project string) error
	Stop(ctx context.Context, dir, project string) error
	Down(ctx context.Context, dir, project string, removeVolumes bool) error
	Pull(ctx context.Context, dir, project string) error
}

// Exposer reconciles public DNS and tunnel ingress for a project.
type Exposer interface {
	EnsureExposure(ctx context.Context, name, slug string, port int, internalURL string) (exposure.Exposure, error)
	CleanupExposure(ctx context.Context, slug string) error
}

// Preflighter probes the host environment before a deployment.
type Preflighter interface {
	Check(ctx context.Context) preflight.Report
}

// ContainerVerifier inspects the containers of a deployed project.
type ContainerVerifier interface {
	ProjectContainers(ctx context.Context, project string) (docker.ProjectState, error)
}

// =============================================================================
// Manager
// =============================================================================

// Config holds the filesystem layout the manager operates in.
type Config struct {
	// ProjectsRoot is the directory under which per-project
	// directories are created, one per slug.
	ProjectsRoot string

	// TemplateDir is the shared compose template directory copied
	// into every new project.
	TemplateDir string

	// TemplateSourceURL optionally points at a git repository the
	// template is cloned from when TemplateDir does not exist yet.
	TemplateSourceURL string
}

// Manager coordinates lifecycle operations for all projects.
type Manager struct {
	store     store.Store
	compose   ComposeRunner
	preflight Preflighter
	exposer   Exposer
	verifier  ContainerVerifier // may be nil; verification degrades to a skip
	cfg       Config
	logger    *slog.Logger

	locks projectLocks
}

// NewManager creates a lifecycle manager. verifier may be nil when no
// Docker SDK connection is available; post-deploy verification is then
// skipped.
func NewManager(st store.Store, compose ComposeRunner, pf Preflighter, exp Exposer, verifier ContainerVerifier, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		store:     st,
		compose:   compose,
		preflight: pf,
		exposer:   exp,
		verifier:  verifier,
		cfg:       cfg,
		logger:    logger,
	}
}

// =============================================================================
// Results
// =============================================================================

// CreateResult reports the outcome of CreateProject.
type CreateResult struct {
	domain.Result
	Project *domain.Project `json:"project,omitempty"`
}

// DeployResult reports the outcome of DeployProject.
type DeployResult struct {
	domain.Result
	Hostname  string `json:"hostname,omitempty"`
	PublicURL string `json:"public_url,omitempty"`
}

// =============================================================================
// Create
// =============================================================================

// CreateProject provisions a new project: a store row, a project
// directory copied from the shared template, a patched compose file,
// and a generated environment. There is no rollback of a partially
// materialized directory on failure; re-creating under a new name is
// the recovery path.
func (m *Manager) CreateProject(ctx context.Context, name, userID string) CreateResult {
	now := time.Now()

	project, err := domain.NewProject(name, userID, now)
	if err != nil {
		return CreateResult{Result: domain.Fail("invalid project: %v", err)}
	}
	project.RootDir = filepath.Join(m.cfg.ProjectsRoot, project.Slug)

	unlock := m.locks.lock(project.ID)
	defer unlock()

	log := m.logger.With("project_id", project.ID, "slug", project.Slug)
	log.Info("creating project", "name", name, "user_id", userID)

	if err := m.store.CreateProject(ctx, project); err != nil {
		return CreateResult{Result: domain.Fail("failed to persist project: %v", err)}
	}

	if err := m.materializeTemplate(ctx, project.RootDir); err != nil {
		return CreateResult{Result: domain.Fail("failed to materialize template: %v", err)}
	}

	if err := m.patchComposeFile(project.RootDir, project.Slug, true); err != nil {
		return CreateResult{Result: domain.Fail("failed to patch compose file: %v", err)}
	}

	env, err := secrets.DefaultEnvironment(project.Name, project.Slug, secrets.DerivePorts(now), now)
	if err != nil {
		return CreateResult{Result: domain.Fail("failed to generate environment: %v", err)}
	}

	if err := godotenv.Write(env, filepath.Join(project.RootDir, EnvFileName)); err != nil {
		return CreateResult{Result: domain.Fail("failed to write environment file: %v", err)}
	}

	for key, value := range env {
		v := domain.EnvVar{ProjectID: project.ID, Key: key, Value: value}
		if err := m.store.UpsertEnvVar(ctx, &v); err != nil {
			return CreateResult{Result: domain.Fail("failed to store env var %s: %v", key, err)}
		}
	}

	log.Info("project created", "root_dir", project.RootDir)
	return CreateResult{Result: domain.OK(), Project: project}
}

// =============================================================================
// Environment Variables
// =============================================================================

// UpdateEnvVars upserts the given pairs into the store and rewrites
// the project's environment file to exactly this set. Callers that
// want file/store consistency must pass the complete desired set.
func (m *Manager) UpdateEnvVars(ctx context.Context, id string, vars map[string]string) domain.Result {
	unlock := m.locks.lock(id)
	defer unlock()

	project, err := m.store.GetProject(ctx, id)
	if err != nil {
		return domain.Fail("project not found: %v", err)
	}

	for key, value := range vars {
		v := domain.EnvVar{ProjectID: project.ID, Key: key, Value: value}
		if err := m.store.UpsertEnvVar(ctx, &v); err != nil {
			return domain.Fail("failed to store env var %s: %v", key, err)
		}
	}

	if err := godotenv.Write(vars, filepath.Join(project.RootDir, EnvFileName)); err != nil {
		return domain.Fail("failed to write environment file: %v", err)
	}

	return domain.OK()
}

// =============================================================================
// Deploy
// =============================================================================

// DeployProject brings a project's stack up and exposes it publicly.
// The compose file is re-patched first so projects created before a
// patcher change still pick up variable port bindings.
func (m *Manager) DeployProject(ctx context.Context, id string) DeployResult {
	unlock := m.locks.lock(id)
	defer unlock()

	project, err := m.store.GetProject(ctx, id)
	if err != nil {
		return DeployResult{Result: domain.Fail("project not found: %v", err)}
	}

	log := m.logger.With("project_id", project.ID, "slug", project.Slug)
	log.Info("deploying project")

	if err := m.patchComposeFile(project.RootDir, project.Slug, false); err != nil {
		return DeployResult{Result: domain.Fail("failed to patch compose file: %v", err)}
	}

	report := m.preflight.Check(ctx)
	if !report.DockerInstalled {
		return DeployResult{Result: domain.Fail("Docker is not installed or not on PATH. Install Docker and retry.")}
	}
	if !report.ComposeInstalled {
		return DeployResult{Result: domain.Fail("Docker Compose is not available. Install the compose plugin (or docker-compose) and retry.")}
	}

	if report.NetworkOnline {
		if err := m.compose.Pull(ctx, project.RootDir, project.Slug); err != nil {
			log.Warn("image pull failed, deploying with cached images", "error", err)
		}
	} else {
		log.Warn("no network connectivity detected, skipping image pull")
	}

	if err := m.compose.Up(ctx, project.RootDir, project.Slug); err != nil {
		return DeployResult{Result: domain.Fail("%v", err)}
	}

	m.verifyContainers(ctx, project.Slug, log)

	vars, err := m.store.GetEnvVars(ctx, project.ID)
	if err != nil {
		return DeployResult{Result: domain.Fail("failed to load env vars: %v", err)}
	}

	exp, err := m.exposer.EnsureExposure(ctx, project.Name, project.Slug, publicPort(vars), "")
	if err != nil {
		return DeployResult{Result: domain.Fail("failed to expose project: %v", err)}
	}

	for key, value := range map[string]string{
		secrets.KeyPublicHostname: exp.Hostname,
		secrets.KeyPublicURL:      exp.PublicURL,
	} {
		v := domain.EnvVar{ProjectID: project.ID, Key: key, Value: value}
		if err := m.store.UpsertEnvVar(ctx, &v); err != nil {
			return DeployResult{Result: domain.Fail("failed to store env var %s: %v", key, err)}
		}
	}

	if project.Status != domain.StatusActive {
		if err := project.Transition(domain.StatusActive); err != nil {
			return DeployResult{Result: domain.Fail("invalid status transition: %v", err)}
		}
		if err := m.store.UpdateProject(ctx, project); err != nil {
			return DeployResult{Result: domain.Fail("failed to persist status: %v", err)}
		}
	}

	log.Info("project deployed", "hostname", exp.Hostname)
	return DeployResult{Result: domain.OK(), Hostname: exp.Hostname, PublicURL: exp.PublicURL}
}

// verifyContainers is best-effort: containers may legitimately still
// be starting right after `up -d`, so anything short of healthy is a
// warning, never a deployment failure.
func (m *Manager) verifyContainers(ctx context.Context, slug string, log *slog.Logger) {
	if m.verifier == nil {
		return
	}
	state, err := m.verifier.ProjectContainers(ctx, slug)
	if err != nil {
		log.Warn("container verification failed", "error", err)
		return
	}
	if !state.Healthy() {
		log.Warn("not all containers are running yet",
			"running", state.Running, "total", len(state.Containers))
	}
}

// publicPort resolves the externally visible port from stored env
// vars. The Kong gateway port fronts the whole stack; Studio and
// Postgres are fallbacks for stripped-down templates.
func publicPort(vars []domain.EnvVar) int {
	byKey := make(map[string]string, len(vars))
	for _, v := range vars {
		byKey[v.Key] = v.Value
	}
	for _, key := range []string{secrets.KeyKongHTTPPort, secrets.KeyStudioPort, secrets.KeyPostgresPort} {
		if raw, ok := byKey[key]; ok {
			if port, err := strconv.Atoi(raw); err == nil && port > 0 {
				return port
			}
		}
	}
	return 0
}

// =============================================================================
// Pause
// =============================================================================

// PauseProject stops the project's containers without removing them.
func (m *Manager) PauseProject(ctx context.Context, id string) domain.Result {
	unlock := m.locks.lock(id)
	defer unlock()

	project, err := m.store.GetProject(ctx, id)
	if err != nil {
		return domain.Fail("project not found: %v", err)
	}

	if err := m.compose.Stop(ctx, project.RootDir, project.Slug); err != nil {
		return domain.Fail("%v", err)
	}

	if err := project.Transition(domain.StatusPaused); err != nil {
		return domain.Fail("invalid status transition: %v", err)
	}
	if err := m.store.UpdateProject(ctx, project); err != nil {
		return domain.Fail("failed to persist status: %v", err)
	}

	m.logger.Info("project paused", "project_id", project.ID, "slug", project.Slug)
	return domain.OK()
}

// =============================================================================
// Delete
// =============================================================================

// DeleteProject tears a project down. Every physical cleanup step is
// best-effort and independent; only failure to delete the store rows
// is fatal, because an orphaned record has a data-integrity cost that
// orphaned containers or files do not.
func (m *Manager) DeleteProject(ctx context.Context, id string) domain.Result {
	unlock := m.locks.lock(id)
	defer unlock()

	project, err := m.store.GetProject(ctx, id)
	if err != nil {
		return domain.Fail("project not found: %v", err)
	}

	log := m.logger.With("project_id", project.ID, "slug", project.Slug)
	log.Info("deleting project")

	if err := m.compose.Down(ctx, project.RootDir, project.Slug, true); err != nil {
		log.Warn("failed to remove containers", "error", err)
	}

	if err := m.exposer.CleanupExposure(ctx, project.Slug); err != nil {
		log.Warn("failed to clean up exposure", "error", err)
	}

	if project.RootDir != "" {
		if err := os.RemoveAll(project.RootDir); err != nil {
			log.Warn("failed to remove project directory", "error", err)
		}
	}

	var errs []error
	if err := m.store.DeleteEnvVars(ctx, project.ID); err != nil {
		errs = append(errs, fmt.Errorf("env vars: %w", err))
	}
	if err := m.store.DeleteProject(ctx, project.ID); err != nil {
		errs = append(errs, fmt.Errorf("project: %w", err))
	}
	if len(errs) > 0 {
		return domain.Fail("failed to delete store records: %v", errors.Join(errs...))
	}

	log.Info("project deleted")
	return domain.OK()
}

// =============================================================================
// Compose File Patching
// =============================================================================

// patchComposeFile applies the textual patches to the project's
// compose file. Identity rewrite only happens at creation; port
// injection runs on every deploy and is a no-op once applied.
func (m *Manager) patchComposeFile(rootDir, slug string, rewriteIdentity bool) error {
	path := filepath.Join(rootDir, ComposeFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read compose file: %w", err)
	}

	doc := string(raw)
	changed := false

	if rewriteIdentity {
		var did bool
		doc, did = composefile.RewriteIdentity(doc, slug)
		changed = changed || did
	}

	var did bool
	doc, did = composefile.InjectPortVariables(doc)
	changed = changed || did

	if !changed {
		return nil
	}

	// The loader check is advisory. The textual patch must not depend
	// on full-schema fidelity, so a template the loader rejects is
	// still written and left for compose itself to judge.
	if err := composefile.ValidatePatched(doc); err != nil {
		m.logger.Warn("patched compose file failed validation",
			"path", path, "error", err)
	}

	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("write compose file: %w", err)
	}
	return nil
}

// =============================================================================
// Per-Project Locking
// =============================================================================

// projectLocks serializes lifecycle operations per project id.
// Operations on different projects run freely in parallel; the shared
// ingress document tolerates that via read-merge-write.
type projectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (p *projectLocks) lock(id string) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[string]*sync.Mutex)
	}
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
