// Package dockerapi wraps the Docker Engine client into the narrow
// capability set the isolation executor needs: stop, pause,
// disconnect_network, list_containers, inspect (spec.md §4.6). The
// capability set is itself a collaborator — Ironpost's core depends only
// on the API interface below, not on the Docker SDK's full surface.
package dockerapi

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerInfo mirrors spec.md §3's ContainerInfo shape.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	State     string
	Labels    map[string]string
	CreatedAt time.Time
}

// API is the Docker-like capability set the executor and guard loop
// depend on.
type API interface {
	Stop(ctx context.Context, containerID string) error
	Pause(ctx context.Context, containerID string) error
	DisconnectNetwork(ctx context.Context, containerID, network string) error
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
	Inspect(ctx context.Context, containerID string) (ContainerInfo, error)
}

// Client implements API over the real Docker Engine client.
type Client struct {
	cli *client.Client
}

// New connects to the Docker daemon at host (e.g.
// "unix:///var/run/docker.sock") and verifies connectivity with Ping.
func New(ctx context.Context, host string) (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: create client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("dockerapi: ping %s: %w", host, err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("dockerapi: stop %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) Pause(ctx context.Context, containerID string) error {
	if err := c.cli.ContainerPause(ctx, containerID); err != nil {
		return fmt.Errorf("dockerapi: pause %s: %w", containerID, err)
	}
	return nil
}

func (c *Client) DisconnectNetwork(ctx context.Context, containerID, network string) error {
	if err := c.cli.NetworkDisconnect(ctx, network, containerID, true); err != nil {
		return fmt.Errorf("dockerapi: disconnect %s from %s: %w", containerID, network, err)
	}
	return nil
}

func (c *Client) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := c.cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("dockerapi: list containers: %w", err)
	}
	out := make([]ContainerInfo, 0, len(containers))
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = ct.Names[0]
		}
		out = append(out, ContainerInfo{
			ID:        ct.ID,
			Name:      name,
			Image:     ct.Image,
			State:     ct.State,
			Labels:    ct.Labels,
			CreatedAt: time.Unix(ct.Created, 0),
		})
	}
	return out, nil
}

func (c *Client) Inspect(ctx context.Context, containerID string) (ContainerInfo, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("dockerapi: inspect %s: %w", containerID, err)
	}
	created, _ := time.Parse(time.RFC3339Nano, inspect.Created)
	name := inspect.Name
	state := ""
	if inspect.State != nil {
		state = inspect.State.Status
	}
	return ContainerInfo{
		ID:        inspect.ID,
		Name:      name,
		Image:     inspect.Config.Image,
		State:     state,
		Labels:    inspect.Config.Labels,
		CreatedAt: created,
	}, nil
}
