// Package docker adapts the Docker Engine API for the registry: image
// presence checks during scans and compose-project status reconciliation.
package docker

import (
	"context"
	"fmt"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// composeWorkingDirLabel is set by compose on every container it manages
// and carries the absolute path of the project directory.
const composeWorkingDirLabel = "com.docker.compose.project.working_dir"

// Client wraps a Docker Engine API client.
type Client struct {
	cli *client.Client
}

// NewClient creates a Client from the environment (DOCKER_HOST and friends).
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewClientFrom wraps an existing Docker client.
func NewClientFrom(cli *client.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	if c == nil || c.cli == nil {
		return nil
	}
	return c.cli.Close()
}

// ImageExists reports whether an image reference resolves locally.
// Only a not-found answer is treated as absence; transport failures are
// surfaced so callers can distinguish "missing" from "daemon unreachable".
func (c *Client) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := c.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %q: %w", ref, err)
	}
	return true, nil
}

// RunningProjectDirs returns the set of compose project working directories
// with at least one running container, keyed by absolute path.
func (c *Client) RunningProjectDirs(ctx context.Context) (map[string]bool, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	dirs := make(map[string]bool)
	for _, ct := range containers {
		if dir := ct.Labels[composeWorkingDirLabel]; dir != "" {
			dirs[dir] = true
		}
	}
	return dirs, nil
}

// ContainerInfo is one running container as shown by the API.
type ContainerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	Ports  string `json:"ports"`
}

// RunningContainers lists running containers in display form.
func (c *Client) RunningContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]ContainerInfo, 0, len(containers))
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		id := ct.ID
		if len(id) > 12 {
			id = id[:12]
		}
		out = append(out, ContainerInfo{
			ID:     id,
			Name:   name,
			Image:  ct.Image,
			Status: ct.Status,
			Ports:  formatPorts(ct.Ports),
		})
	}
	return out, nil
}

func formatPorts(ports []container.Port) string {
	parts := make([]string, 0, len(ports))
	for _, p := range ports {
		switch {
		case p.PublicPort != 0 && p.IP != "":
			parts = append(parts, fmt.Sprintf("%s:%d->%d/%s", p.IP, p.PublicPort, p.PrivatePort, p.Type))
		case p.PublicPort != 0:
			parts = append(parts, fmt.Sprintf("%d->%d/%s", p.PublicPort, p.PrivatePort, p.Type))
		default:
			parts = append(parts, fmt.Sprintf("%d/%s", p.PrivatePort, p.Type))
		}
	}
	return strings.Join(parts, ", ")
}
