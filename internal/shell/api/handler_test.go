package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackhost/stackhost/internal/core/domain"
	"github.com/stackhost/stackhost/internal/shell/lifecycle"
	"github.com/stackhost/stackhost/internal/shell/store"
)

// =============================================================================
// Fake Lifecycle
// =============================================================================

// fakeLifecycle fulfills lifecycle operations against the real store
// without touching docker or the network.
type fakeLifecycle struct {
	store store.Store

	deployResult lifecycle.DeployResult
	pauseResult  domain.Result
}

func (f *fakeLifecycle) CreateProject(ctx context.Context, name, userID string) lifecycle.CreateResult {
	p, err := domain.NewProject(name, userID, time.Now())
	if err != nil {
		return lifecycle.CreateResult{Result: domain.Fail("invalid project: %v", err)}
	}
	if err := f.store.CreateProject(ctx, p); err != nil {
		return lifecycle.CreateResult{Result: domain.Fail("failed to persist project: %v", err)}
	}
	return lifecycle.CreateResult{Result: domain.OK(), Project: p}
}

func (f *fakeLifecycle) DeployProject(ctx context.Context, id string) lifecycle.DeployResult {
	return f.deployResult
}

func (f *fakeLifecycle) PauseProject(ctx context.Context, id string) domain.Result {
	return f.pauseResult
}

func (f *fakeLifecycle) DeleteProject(ctx context.Context, id string) domain.Result {
	if err := f.store.DeleteProject(ctx, id); err != nil {
		return domain.Fail("failed to delete: %v", err)
	}
	return domain.OK()
}

func (f *fakeLifecycle) UpdateEnvVars(ctx context.Context, id string, vars map[string]string) domain.Result {
	for k, v := range vars {
		ev := domain.EnvVar{ProjectID: id, Key: k, Value: v}
		if err := f.store.UpsertEnvVar(ctx, &ev); err != nil {
			return domain.Fail("failed to store env var: %v", err)
		}
	}
	return domain.OK()
}

// =============================================================================
// Fixture
// =============================================================================

func newTestHandler(t *testing.T, auth *Auth) (*Handler, *fakeLifecycle) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	lc := &fakeLifecycle{
		store:        st,
		deployResult: lifecycle.DeployResult{Result: domain.OK(), Hostname: "x.example.com", PublicURL: "https://x.example.com"},
		pauseResult:  domain.OK(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(st, lc, auth, logger), lc
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createProject(t *testing.T, h http.Handler) ProjectResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Name: "Demo", UserID: "user-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp ProjectResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// =============================================================================
// Tests
// =============================================================================

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	rec := doJSON(t, h.Routes(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestCreateProjectEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()

	resp := createProject(t, routes)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "created", resp.Status)

	rec := doJSON(t, routes, http.MethodGet, "/api/v1/projects/"+resp.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Lookup by slug works too.
	rec = doJSON(t, routes, http.MethodGet, "/api/v1/projects/"+resp.Slug, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()

	rec := doJSON(t, routes, http.MethodPost, "/api/v1/projects", CreateProjectRequest{UserID: "u"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, routes, http.MethodPost, "/api/v1/projects", CreateProjectRequest{Name: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects", bytes.NewBufferString("{not json"))
	rec2 := httptest.NewRecorder()
	routes.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestListProjects(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()
	createProject(t, routes)

	rec := doJSON(t, routes, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ProjectListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)

	rec = doJSON(t, routes, http.MethodGet, "/api/v1/projects?user_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Count)
}

func TestDeployEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()
	p := createProject(t, routes)

	rec := doJSON(t, routes, http.MethodPost, "/api/v1/projects/"+p.ID+"/deploy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "x.example.com")
}

func TestDeployEndpointFailure(t *testing.T) {
	h, lc := newTestHandler(t, nil)
	lc.deployResult = lifecycle.DeployResult{Result: domain.Fail("Docker is not installed")}
	routes := h.Routes()
	p := createProject(t, routes)

	rec := doJSON(t, routes, http.MethodPost, "/api/v1/projects/"+p.ID+"/deploy", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Docker is not installed")
}

func TestProjectNotFound(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()

	rec := doJSON(t, routes, http.MethodGet, "/api/v1/projects/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "project_not_found")
}

func TestDeleteEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()
	p := createProject(t, routes)

	rec := doJSON(t, routes, http.MethodDelete, "/api/v1/projects/"+p.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, routes, http.MethodGet, "/api/v1/projects/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnvVarEndpoints(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	routes := h.Routes()
	p := createProject(t, routes)

	rec := doJSON(t, routes, http.MethodPut, "/api/v1/projects/"+p.ID+"/env",
		UpdateEnvVarsRequest{Vars: map[string]string{"SMTP_HOST": "mail.example.com"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, routes, http.MethodGet, "/api/v1/projects/"+p.ID+"/env", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp EnvVarsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "mail.example.com", resp.Vars["SMTP_HOST"])

	rec = doJSON(t, routes, http.MethodPut, "/api/v1/projects/"+p.ID+"/env", UpdateEnvVarsRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Auth
// =============================================================================

func TestAuthMiddleware(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)

	h, _ := newTestHandler(t, NewAuth("admin", hash))
	routes := h.Routes()

	// Health stays open.
	rec := doJSON(t, routes, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// No credentials.
	rec = doJSON(t, routes, http.MethodGet, "/api/v1/projects", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong password.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.SetBasicAuth("admin", "wrong")
	rec2 := httptest.NewRecorder()
	routes.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	// Correct credentials.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec3 := httptest.NewRecorder()
	routes.ServeHTTP(rec3, req)
	assert.Equal(t, http.StatusOK, rec3.Code)
}
