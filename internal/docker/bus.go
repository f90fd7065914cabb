package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const redisPort nat.Port = "6379/tcp"

// BusSpec describes the Redis container backing one session.
type BusSpec struct {
	Session string
	RunID   string
	Image   string
	Port    int // host port, bound on 127.0.0.1
}

// Bus is a running (or stopped) session container.
type Bus struct {
	ID      string
	Name    string
	Session string
	Port    int
	State   string
}

// URL returns the Redis URL for reaching the bus from the host.
func (b Bus) URL() string {
	return fmt.Sprintf("redis://localhost:%d", b.Port)
}

// RedisContainerConfig builds the create options for a session's Redis container.
func RedisContainerConfig(spec BusSpec) (*container.Config, *container.HostConfig) {
	labels := BuildLabels(spec.Session, spec.RunID, ComponentRedis)
	labels[LabelRedisPort] = strconv.Itoa(spec.Port)

	cfg := &container.Config{
		Image:        spec.Image,
		Labels:       labels,
		ExposedPorts: nat.PortSet{redisPort: struct{}{}},
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			redisPort: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(spec.Port)}},
		},
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
	}
	return cfg, hostCfg
}

// StartBus pulls the image if needed and starts the session's Redis container.
func StartBus(ctx context.Context, cli *client.Client, spec BusSpec) (Bus, error) {
	existing, err := ListBuses(ctx, cli, spec.Session)
	if err != nil {
		return Bus{}, err
	}
	if len(existing) > 0 {
		return Bus{}, fmt.Errorf("session '%s' already has a bus container: %s", spec.Session, existing[0].Name)
	}

	if _, _, err := cli.ImageInspectWithRaw(ctx, spec.Image); err != nil {
		reader, err := cli.ImagePull(ctx, spec.Image, types.ImagePullOptions{})
		if err != nil {
			return Bus{}, fmt.Errorf("failed to pull image %s: %w", spec.Image, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	name := RedisContainerName(spec.Session)
	cfg, hostCfg := RedisContainerConfig(spec)
	resp, err := cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return Bus{}, fmt.Errorf("failed to create Redis container: %w", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return Bus{}, fmt.Errorf("failed to start Redis container: %w", err)
	}

	return Bus{ID: resp.ID, Name: name, Session: spec.Session, Port: spec.Port, State: "running"}, nil
}

// ListBuses returns the bus containers of a session; an empty session lists all.
func ListBuses(ctx context.Context, cli *client.Client, session string) ([]Bus, error) {
	f := filters.NewArgs(filters.Arg("label", LabelProject+"=true"))
	if session != "" {
		f.Add("label", SessionFilter(session))
	}

	containers, err := cli.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	buses := make([]Bus, 0, len(containers))
	for _, c := range containers {
		buses = append(buses, busFromLabels(c.ID, c.Names, c.State, c.Labels))
	}
	return buses, nil
}

func busFromLabels(id string, names []string, state string, labels map[string]string) Bus {
	b := Bus{ID: id, Session: labels[LabelSession], State: state}
	if len(names) > 0 {
		b.Name = trimSlash(names[0])
	}
	b.Port, _ = strconv.Atoi(labels[LabelRedisPort])
	return b
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

// StopBus stops and removes every container of a session. It returns the
// removed buses; none found is not an error.
func StopBus(ctx context.Context, cli *client.Client, session string) ([]Bus, error) {
	buses, err := ListBuses(ctx, cli, session)
	if err != nil {
		return nil, err
	}

	// 10s graceful timeout
	timeout := 10
	for _, b := range buses {
		// Already-stopped containers are removed below regardless.
		_ = cli.ContainerStop(ctx, b.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, b.ID, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", b.Name, err)
		}
	}
	return buses, nil
}
