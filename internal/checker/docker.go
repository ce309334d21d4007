package checker

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hazz-dev/healthgate/internal/config"
	"github.com/hazz-dev/healthgate/internal/task"
)

const dockerSockPath = "/var/run/docker.sock"

// ContainerState holds the minimal container state the check cares about.
type ContainerState struct {
	Running bool
}

// DockerClient abstracts Docker Engine API access for testability.
type DockerClient interface {
	InspectContainer(ctx context.Context, name string) (*ContainerState, error)
}

// newDockerWorker probes a container over the Docker socket and succeeds
// when the container is running.
func newDockerWorker(c config.Check) task.Worker {
	return NewDockerWorkerWithClient(c, newUnixDockerClient(c.Timeout.Duration))
}

// NewDockerWorkerWithClient builds a docker worker with a custom client
// (for testing).
func NewDockerWorkerWithClient(c config.Check, client DockerClient) task.Worker {
	return func(ctx context.Context) (any, error) {
		state, err := client.InspectContainer(ctx, c.Target)
		if err != nil {
			return nil, err
		}
		if !state.Running {
			return nil, fmt.Errorf("container %q is not running", c.Target)
		}
		return map[string]any{"running": true}, nil
	}
}

// unixDockerClient queries the Docker Engine API over the Unix socket.
type unixDockerClient struct {
	client *http.Client
}

func newUnixDockerClient(timeout time.Duration) *unixDockerClient {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return net.DialTimeout("unix", dockerSockPath, timeout)
		},
	}
	return &unixDockerClient{
		client: &http.Client{Transport: transport, Timeout: timeout},
	}
}

func (d *unixDockerClient) InspectContainer(ctx context.Context, name string) (*ContainerState, error) {
	url := fmt.Sprintf("http://localhost/containers/%s/json", name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying docker socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("container %q not found", name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("docker API returned status %d", resp.StatusCode)
	}

	var body struct {
		State ContainerState `json:"State"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding docker response: %w", err)
	}
	return &body.State, nil
}
