package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackhost/stackhost/internal/core/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testProject(t *testing.T, name string) *domain.Project {
	t.Helper()
	p, err := domain.NewProject(name, "user-1", time.Now())
	require.NoError(t, err)
	return p
}

func TestCreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "My App")
	require.NoError(t, s.CreateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "My App", got.Name)
	assert.Equal(t, p.Slug, got.Slug)
	assert.Equal(t, domain.StatusCreated, got.Status)

	bySlug, err := s.GetProjectBySlug(ctx, p.Slug)
	require.NoError(t, err)
	assert.Equal(t, p.ID, bySlug.ID)
}

func TestGetProjectNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetProject(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetProjectBySlug(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateProjectDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Now()
	p1, err := domain.NewProject("app", "user-1", at)
	require.NoError(t, err)
	p2, err := domain.NewProject("app", "user-2", at)
	require.NoError(t, err)
	require.NoError(t, s.CreateProject(ctx, p1))

	err = s.CreateProject(ctx, p2)
	assert.ErrorIs(t, err, ErrDuplicateSlug)
}

func TestCreateProjectDuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))

	dup := *p
	dup.Slug = p.Slug + "-other"
	err := s.CreateProject(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestUpdateProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))

	require.NoError(t, p.Transition(domain.StatusActive))
	p.RootDir = "/srv/projects/" + p.Slug
	require.NoError(t, s.UpdateProject(ctx, p))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, "/srv/projects/"+p.Slug, got.RootDir)
}

func TestUpdateProjectNotFound(t *testing.T) {
	s := newTestStore(t)

	p := testProject(t, "app")
	err := s.UpdateProject(context.Background(), p)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.DeleteProject(ctx, p.ID))

	_, err := s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.DeleteProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProjectCascadesEnvVars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.UpsertEnvVar(ctx, &domain.EnvVar{ProjectID: p.ID, Key: "JWT_SECRET", Value: "abc"}))

	require.NoError(t, s.DeleteProject(ctx, p.ID))

	vars, err := s.GetEnvVars(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		p, err := domain.NewProject("app", "user-1", base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		require.NoError(t, s.CreateProject(ctx, p))
	}
	other, err := domain.NewProject("other", "user-2", base.Add(10*time.Second))
	require.NoError(t, err)
	require.NoError(t, s.CreateProject(ctx, other))

	all, err := s.ListProjects(ctx, DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, all, 4)

	mine, err := s.ListProjectsByUser(ctx, "user-1", DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, mine, 3)

	page, err := s.ListProjects(ctx, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestUpsertEnvVar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))

	require.NoError(t, s.UpsertEnvVar(ctx, &domain.EnvVar{ProjectID: p.ID, Key: "KONG_HTTP_PORT", Value: "54321"}))
	require.NoError(t, s.UpsertEnvVar(ctx, &domain.EnvVar{ProjectID: p.ID, Key: "KONG_HTTP_PORT", Value: "54999"}))
	require.NoError(t, s.UpsertEnvVar(ctx, &domain.EnvVar{ProjectID: p.ID, Key: "ANON_KEY", Value: "token"}))

	vars, err := s.GetEnvVars(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "ANON_KEY", vars[0].Key)
	assert.Equal(t, "KONG_HTTP_PORT", vars[1].Key)
	assert.Equal(t, "54999", vars[1].Value)
}

func TestDeleteEnvVars(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := testProject(t, "app")
	require.NoError(t, s.CreateProject(ctx, p))
	require.NoError(t, s.UpsertEnvVar(ctx, &domain.EnvVar{ProjectID: p.ID, Key: "A", Value: "1"}))

	require.NoError(t, s.DeleteEnvVars(ctx, p.ID))
	require.NoError(t, s.DeleteEnvVars(ctx, p.ID))

	vars, err := s.GetEnvVars(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestListOptionsNormalize(t *testing.T) {
	assert.Equal(t, ListOptions{Limit: 100}, ListOptions{}.Normalize())
	assert.Equal(t, ListOptions{Limit: 1000}, ListOptions{Limit: 5000}.Normalize())
	assert.Equal(t, ListOptions{Limit: 10}, ListOptions{Limit: 10, Offset: -1}.Normalize())
}
