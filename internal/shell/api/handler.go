// Package api provides the HTTP surface over the project lifecycle.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stackhost/stackhost/internal/core/domain"
	"github.com/stackhost/stackhost/internal/shell/lifecycle"
	"github.com/stackhost/stackhost/internal/shell/store"
)

// Lifecycle is the subset of the lifecycle manager the API drives.
type Lifecycle interface {
	CreateProject(ctx context.Context, name, userID string) lifecycle.CreateResult
	DeployProject(ctx context.Context, id string) lifecycle.DeployResult
	PauseProject(ctx context.Context, id string) domain.Result
	DeleteProject(ctx context.Context, id string) domain.Result
	UpdateEnvVars(ctx context.Context, id string, vars map[string]string) domain.Result
}

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API.
type Handler struct {
	store     store.Store
	lifecycle Lifecycle
	auth      *Auth // nil disables authentication
	logger    *slog.Logger
}

// NewHandler creates a new API handler. auth may be nil, which leaves
// the API unauthenticated (local development only).
func NewHandler(s store.Store, lc Lifecycle, auth *Auth, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:     s,
		lifecycle: lc,
		auth:      auth,
		logger:    logger,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.jsonContentType)
	r.Use(h.requestIDHeader)

	r.Get("/health", h.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth.Middleware)
		}

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.handleCreateProject)
			r.Get("/", h.handleListProjects)
			r.Get("/{id}", h.handleGetProject)
			r.Delete("/{id}", h.handleDeleteProject)
			r.Post("/{id}/deploy", h.handleDeployProject)
			r.Post("/{id}/pause", h.handlePauseProject)
			r.Get("/{id}/env", h.handleGetEnvVars)
			r.Put("/{id}/env", h.handleUpdateEnvVars)
		})
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// jsonContentType sets Content-Type header to application/json.
func (h *Handler) jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// =============================================================================
// Project Handlers
// =============================================================================

func (h *Handler) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required", "validation_error")
		return
	}
	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id is required", "validation_error")
		return
	}

	out := h.lifecycle.CreateProject(r.Context(), req.Name, req.UserID)
	if !out.Success {
		h.writeError(w, http.StatusUnprocessableEntity, out.Error, "create_failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, projectToResponse(out.Project))
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	opts := store.DefaultListOptions()

	var (
		projects []domain.Project
		err      error
	)
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		projects, err = h.store.ListProjectsByUser(r.Context(), userID, opts)
	} else {
		projects, err = h.store.ListProjects(r.Context(), opts)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to list projects", "internal_error")
		return
	}

	resp := ProjectListResponse{Projects: make([]ProjectResponse, 0, len(projects))}
	for i := range projects {
		resp.Projects = append(resp.Projects, projectToResponse(&projects[i]))
	}
	resp.Count = len(resp.Projects)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, projectToResponse(project))
}

func (h *Handler) handleDeployProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}

	out := h.lifecycle.DeployProject(r.Context(), project.ID)
	if !out.Success {
		h.writeError(w, http.StatusUnprocessableEntity, out.Error, "deploy_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"hostname":   out.Hostname,
		"public_url": out.PublicURL,
	})
}

func (h *Handler) handlePauseProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}

	if res := h.lifecycle.PauseProject(r.Context(), project.ID); !res.Success {
		h.writeError(w, http.StatusUnprocessableEntity, res.Error, "pause_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.StatusPaused)})
}

func (h *Handler) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}

	if res := h.lifecycle.DeleteProject(r.Context(), project.ID); !res.Success {
		h.writeError(w, http.StatusInternalServerError, res.Error, "delete_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Env Var Handlers
// =============================================================================

func (h *Handler) handleGetEnvVars(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}

	vars, err := h.store.GetEnvVars(r.Context(), project.ID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load env vars", "internal_error")
		return
	}

	resp := EnvVarsResponse{Vars: make(map[string]string, len(vars))}
	for _, v := range vars {
		resp.Vars[v.Key] = v.Value
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleUpdateEnvVars(w http.ResponseWriter, r *http.Request) {
	project, ok := h.getProject(w, r)
	if !ok {
		return
	}

	var req UpdateEnvVarsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "validation_error")
		return
	}
	if len(req.Vars) == 0 {
		h.writeError(w, http.StatusBadRequest, "vars must not be empty", "validation_error")
		return
	}

	if res := h.lifecycle.UpdateEnvVars(r.Context(), project.ID, req.Vars); !res.Success {
		h.writeError(w, http.StatusUnprocessableEntity, res.Error, "env_update_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, EnvVarsResponse{Vars: req.Vars})
}

// =============================================================================
// Helpers
// =============================================================================

// getProject resolves {id} as a project id first and a slug second.
func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	id := chi.URLParam(r, "id")

	project, err := h.store.GetProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		project, err = h.store.GetProjectBySlug(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "project not found", "project_not_found")
		} else {
			h.writeError(w, http.StatusInternalServerError, "failed to get project", "internal_error")
		}
		return nil, false
	}
	return project, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
