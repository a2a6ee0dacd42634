package api

import (
	"time"

	"github.com/stackhost/stackhost/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

// UpdateEnvVarsRequest is the request body for replacing a project's
// environment set.
type UpdateEnvVarsRequest struct {
	Vars map[string]string `json:"vars"`
}

// =============================================================================
// Response Types
// =============================================================================

// ProjectResponse is the response shape for project reads.
type ProjectResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	UserID    string    `json:"user_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func projectToResponse(p *domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		UserID:    p.UserID,
		Status:    string(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// ProjectListResponse is the response for listing projects.
type ProjectListResponse struct {
	Projects []ProjectResponse `json:"projects"`
	Count    int               `json:"count"`
}

// EnvVarsResponse exposes a project's stored environment set.
type EnvVarsResponse struct {
	Vars map[string]string `json:"vars"`
}

// HealthResponse is the response for health checks.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
