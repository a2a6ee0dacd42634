package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Project Errors
// =============================================================================

var (
	ErrEmptyName         = errors.New("project name must not be empty")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// Project Status
// =============================================================================

type ProjectStatus string

const (
	StatusCreated ProjectStatus = "created"
	StatusActive  ProjectStatus = "active"
	StatusPaused  ProjectStatus = "paused"
	StatusDeleted ProjectStatus = "deleted"
)

// validTransitions defines the allowed status transitions.
// A project that never deployed successfully may be deleted straight
// from "created".
var validTransitions = map[ProjectStatus][]ProjectStatus{
	StatusCreated: {StatusActive, StatusDeleted},
	StatusActive:  {StatusPaused, StatusDeleted},
	StatusPaused:  {StatusActive, StatusDeleted},
	StatusDeleted: {}, // Terminal state
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to ProjectStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// =============================================================================
// Project
// =============================================================================

// Project is one tenant's isolated instance of the backend stack.
// Slug is derived once at creation and is immutable; every external
// resource (container names, DNS hostname, project directory) hangs
// off it.
type Project struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Slug      string        `json:"slug"`
	UserID    string        `json:"user_id"`
	Status    ProjectStatus `json:"status"`
	RootDir   string        `json:"root_dir,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewProject creates a project in the "created" state with a slug
// derived from the name and the creation timestamp.
func NewProject(name, userID string, now time.Time) (*Project, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	now = now.UTC()
	return &Project{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      DeriveSlug(name, now),
		UserID:    userID,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Transition attempts to move the project to a new status.
func (p *Project) Transition(to ProjectStatus) error {
	if err := ValidateTransition(p.Status, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, to)
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// =============================================================================
// EnvVar
// =============================================================================

// EnvVar mirrors one entry of a project's runtime environment file.
// Key is unique per project.
type EnvVar struct {
	ProjectID string `json:"project_id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// =============================================================================
// Operation Result
// =============================================================================

// Result is the uniform outcome shape of every public lifecycle
// operation. Operations are total: they never panic or leak an
// unhandled fault, they report it here instead.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK returns a successful result.
func OK() Result {
	return Result{Success: true}
}

// Fail returns a failed result with a formatted error message.
func Fail(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}
