package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stackhost/stackhost/internal/shell/api"
	"github.com/stackhost/stackhost/internal/shell/compose"
	"github.com/stackhost/stackhost/internal/shell/dns"
	"github.com/stackhost/stackhost/internal/shell/docker"
	"github.com/stackhost/stackhost/internal/shell/exposure"
	"github.com/stackhost/stackhost/internal/shell/lifecycle"
	"github.com/stackhost/stackhost/internal/shell/preflight"
	"github.com/stackhost/stackhost/internal/shell/store"
	"github.com/stackhost/stackhost/internal/shell/tunnel"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitConfigError     = 1
	ExitDatabaseError   = 2
	ExitHTTPServerError = 3
)

// =============================================================================
// Server
// =============================================================================

// Server represents the stackhost application server.
type Server struct {
	config     *Config
	httpServer *http.Server
	store      store.Store
	docker     *docker.DockerClient // nil when the daemon is unreachable at startup
	logger     *slog.Logger
}

// NewServer creates a new server with the given config.
func NewServer(cfg *Config, logger *slog.Logger) (*Server, error) {
	// Connect to database
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ServerError{
			Op:       "NewServer",
			Err:      err,
			ExitCode: ExitDatabaseError,
		}
	}

	// Connect to Docker. A missing daemon is not fatal here: project
	// creation works without it and deploys surface a preflight error.
	var dockerClient *docker.DockerClient
	if d, err := docker.NewDockerClient(cfg.Docker.Host); err != nil {
		logger.Warn("docker client unavailable", "error", err)
	} else if err := d.Ping(context.Background()); err != nil {
		logger.Warn("docker daemon unreachable, container verification disabled", "error", err)
		d.Close()
	} else {
		dockerClient = d
	}

	// DNS provider. Missing credentials leave exposure in a degraded
	// mode that reports an error on deploy, not at startup.
	provider, err := dns.NewProvider(dns.Config{
		Provider: cfg.DNS.Provider,
		APIToken: cfg.DNS.APIToken,
		ZoneID:   cfg.DNS.ZoneID,
		Zone:     cfg.DNS.Zone,
	}, logger)
	if err != nil {
		if errors.Is(err, dns.ErrMissingCredentials) {
			logger.Warn("dns provider not configured, public exposure will fail on deploy")
		} else {
			s.Close()
			return nil, &ServerError{
				Op:       "NewServer",
				Err:      err,
				ExitCode: ExitConfigError,
			}
		}
	}

	tunnelConfigPath := cfg.Tunnel.ConfigPath
	if tunnelConfigPath == "" {
		tunnelConfigPath = tunnel.DefaultConfigPath
	}
	ingressConfig := tunnel.NewConfigFile(tunnelConfigPath, logger)
	daemon := tunnel.NewDaemon(cfg.Tunnel.ID, logger)

	exposer := exposure.NewManager(
		provider,
		ingressConfig,
		daemon,
		cfg.Domain.BaseDomain,
		cfg.Tunnel.ID,
		cfg.Domain.InternalProxyURL,
		logger,
	)

	var verifier lifecycle.ContainerVerifier
	var pinger preflight.Pinger
	if dockerClient != nil {
		verifier = dockerClient
		pinger = dockerClient
	}

	manager := lifecycle.NewManager(
		s,
		compose.NewRunner(logger),
		preflight.NewChecker(pinger, logger),
		exposer,
		verifier,
		lifecycle.Config{
			ProjectsRoot:      cfg.Projects.Root,
			TemplateDir:       cfg.Projects.TemplateDir,
			TemplateSourceURL: cfg.Projects.TemplateSourceURL,
		},
		logger,
	)

	var auth *api.Auth
	if cfg.Auth.PasswordHash != "" {
		auth = api.NewAuth(cfg.Auth.Username, cfg.Auth.PasswordHash)
	} else {
		logger.Warn("auth.password_hash not set, API is unauthenticated")
	}

	handler := api.NewHandler(s, manager, auth, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config:     cfg,
		httpServer: httpServer,
		store:      s,
		docker:     dockerClient,
		logger:     logger,
	}, nil
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server",
			"address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		return &ServerError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.docker != nil {
		if err := s.docker.Close(); err != nil {
			s.logger.Error("Docker client close error", "error", err)
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("database close error", "error", err)
	}

	s.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Server Error
// =============================================================================

// ServerError represents an error during server operation.
type ServerError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ServerError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ServerError) Unwrap() error {
	return e.Err
}
