package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/stackhost/stackhost/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Project Operations
// =============================================================================

// projectRow represents a project row in the database.
type projectRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Slug      string `db:"slug"`
	UserID    string `db:"user_id"`
	Status    string `db:"status"`
	RootDir   string `db:"root_dir"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func toProjectRow(p *domain.Project) projectRow {
	return projectRow{
		ID:        p.ID,
		Name:      p.Name,
		Slug:      p.Slug,
		UserID:    p.UserID,
		Status:    string(p.Status),
		RootDir:   p.RootDir,
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func fromProjectRow(r projectRow) (domain.Project, error) {
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return domain.Project{}, fmt.Errorf("invalid created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, r.UpdatedAt)
	if err != nil {
		return domain.Project{}, fmt.Errorf("invalid updated_at: %w", err)
	}
	return domain.Project{
		ID:        r.ID,
		Name:      r.Name,
		Slug:      r.Slug,
		UserID:    r.UserID,
		Status:    domain.ProjectStatus(r.Status),
		RootDir:   r.RootDir,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *SQLiteStore) CreateProject(ctx context.Context, project *domain.Project) error {
	row := toProjectRow(project)
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO projects (id, name, slug, user_id, status, root_dir, created_at, updated_at)
		VALUES (:id, :name, :slug, :user_id, :status, :root_dir, :created_at, :updated_at)`, row)
	if err != nil {
		if isUniqueViolation(err, "projects.slug") {
			return NewStoreError("CreateProject", "project", project.ID, err.Error(), ErrDuplicateSlug)
		}
		if isUniqueViolation(err, "projects.id") {
			return NewStoreError("CreateProject", "project", project.ID, err.Error(), ErrDuplicateID)
		}
		return NewStoreError("CreateProject", "project", project.ID, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return s.getProjectBy(ctx, "GetProject", "id", id)
}

func (s *SQLiteStore) GetProjectBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	return s.getProjectBy(ctx, "GetProjectBySlug", "slug", slug)
}

func (s *SQLiteStore) getProjectBy(ctx context.Context, op, column, value string) (*domain.Project, error) {
	var row projectRow
	query := fmt.Sprintf("SELECT * FROM projects WHERE %s = ?", column)
	if err := s.db.GetContext(ctx, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError(op, "project", value, "not found", ErrNotFound)
		}
		return nil, NewStoreError(op, "project", value, err.Error(), err)
	}
	p, err := fromProjectRow(row)
	if err != nil {
		return nil, NewStoreError(op, "project", value, err.Error(), err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpdateProject(ctx context.Context, project *domain.Project) error {
	row := toProjectRow(project)
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE projects
		SET name = :name, status = :status, root_dir = :root_dir, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return NewStoreError("UpdateProject", "project", project.ID, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("UpdateProject", "project", project.ID, "not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return NewStoreError("DeleteProject", "project", id, err.Error(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewStoreError("DeleteProject", "project", id, "not found", ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, opts ListOptions) ([]domain.Project, error) {
	opts = opts.Normalize()
	var rows []projectRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM projects ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListProjects", "project", "", err.Error(), err)
	}
	return projectsFromRows("ListProjects", rows)
}

func (s *SQLiteStore) ListProjectsByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Project, error) {
	opts = opts.Normalize()
	var rows []projectRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM projects WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListProjectsByUser", "project", "", err.Error(), err)
	}
	return projectsFromRows("ListProjectsByUser", rows)
}

func projectsFromRows(op string, rows []projectRow) ([]domain.Project, error) {
	projects := make([]domain.Project, 0, len(rows))
	for _, row := range rows {
		p, err := fromProjectRow(row)
		if err != nil {
			return nil, NewStoreError(op, "project", row.ID, err.Error(), err)
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// =============================================================================
// EnvVar Operations
// =============================================================================

// envVarRow represents an env_var row in the database.
type envVarRow struct {
	ProjectID string `db:"project_id"`
	Key       string `db:"key"`
	Value     string `db:"value"`
}

func (s *SQLiteStore) UpsertEnvVar(ctx context.Context, v *domain.EnvVar) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO env_vars (project_id, key, value)
		VALUES (:project_id, :key, :value)
		ON CONFLICT (project_id, key) DO UPDATE SET value = excluded.value`,
		envVarRow{ProjectID: v.ProjectID, Key: v.Key, Value: v.Value})
	if err != nil {
		return NewStoreError("UpsertEnvVar", "env_var", v.ProjectID+"/"+v.Key, err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) GetEnvVars(ctx context.Context, projectID string) ([]domain.EnvVar, error) {
	var rows []envVarRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM env_vars WHERE project_id = ? ORDER BY key`, projectID)
	if err != nil {
		return nil, NewStoreError("GetEnvVars", "env_var", projectID, err.Error(), err)
	}
	vars := make([]domain.EnvVar, 0, len(rows))
	for _, row := range rows {
		vars = append(vars, domain.EnvVar{ProjectID: row.ProjectID, Key: row.Key, Value: row.Value})
	}
	return vars, nil
}

func (s *SQLiteStore) DeleteEnvVars(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM env_vars WHERE project_id = ?", projectID)
	if err != nil {
		return NewStoreError("DeleteEnvVars", "env_var", projectID, err.Error(), err)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func isUniqueViolation(err error, constraint string) bool {
	return err != nil &&
		strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), constraint)
}
