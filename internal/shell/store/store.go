package store

import (
	"context"

	"github.com/stackhost/stackhost/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for projects and their
// environment variables.
type Store interface {
	// Project operations
	CreateProject(ctx context.Context, project *domain.Project) error
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error)
	UpdateProject(ctx context.Context, project *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, opts ListOptions) ([]domain.Project, error)
	ListProjectsByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Project, error)

	// EnvVar operations. Upsert is keyed by (projectID, key).
	UpsertEnvVar(ctx context.Context, v *domain.EnvVar) error
	GetEnvVars(ctx context.Context, projectID string) ([]domain.EnvVar, error)
	DeleteEnvVars(ctx context.Context, projectID string) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{Limit: 100, Offset: 0}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
