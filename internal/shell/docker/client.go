// Package docker provides a thin Docker daemon client used to verify
// the state of deployed project containers.
package docker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
)

// composeProjectLabel is the label Compose stamps on every container it
// creates, keyed by the project name.
const composeProjectLabel = "com.docker.compose.project"

// =============================================================================
// Docker Client
// =============================================================================

// ContainerInfo is a minimal view of a container in a compose project.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	State     string
	CreatedAt time.Time
}

// Running reports whether the container is in the running state.
func (c ContainerInfo) Running() bool {
	return c.State == "running"
}

// ProjectState summarizes the containers of one compose project.
type ProjectState struct {
	Containers []ContainerInfo
	Running    int
}

// Healthy reports whether every container in the project is running.
func (s ProjectState) Healthy() bool {
	return len(s.Containers) > 0 && s.Running == len(s.Containers)
}

// DockerClient wraps the Docker SDK client.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(host string) (*DockerClient, error) {
	var opts []client.Opt
	opts = append(opts, client.FromEnv)
	opts = append(opts, client.WithAPIVersionNegotiation())

	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", ErrConnectionFailed)
	}

	// Try to ping with default settings
	ctx := context.Background()
	if _, pingErr := cli.Ping(ctx); pingErr != nil {
		// If default socket fails, try Docker Desktop socket on macOS
		homeDir, _ := os.UserHomeDir()
		dockerDesktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		cli2, err2 := client.NewClientWithOpts(
			client.WithHost(dockerDesktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := cli2.Ping(ctx); pingErr2 == nil {
				cli.Close()
				return &DockerClient{cli: cli2}, nil
			}
			cli2.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if the Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// ProjectContainers returns the containers belonging to the compose
// project with the given name, including stopped ones.
func (d *DockerClient) ProjectContainers(ctx context.Context, project string) (ProjectState, error) {
	f := filters.NewArgs()
	f.Add("label", composeProjectLabel+"="+project)

	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return ProjectState{}, NewDockerError("ProjectContainers", "project", project, err.Error(), err)
	}

	var state ProjectState
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		info := ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			State:     c.State,
			CreatedAt: time.Unix(c.Created, 0),
		}
		state.Containers = append(state.Containers, info)
		if info.Running() {
			state.Running++
		}
	}

	return state, nil
}
