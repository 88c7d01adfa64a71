package lease

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DockerService manages a pre-created container by name. Readiness comes
// from an injected probe because the container reports running long before
// the model inside it is serving.
type DockerService struct {
	container string
	ready     func(ctx context.Context) bool
}

func NewDockerService(container string, ready func(ctx context.Context) bool) *DockerService {
	return &DockerService{container: container, ready: ready}
}

func (d *DockerService) Start(ctx context.Context) error {
	return d.run(ctx, "start")
}

func (d *DockerService) Stop(ctx context.Context) error {
	return d.run(ctx, "stop")
}

func (d *DockerService) Ready(ctx context.Context) bool {
	return d.ready(ctx)
}

func (d *DockerService) run(ctx context.Context, verb string) error {
	out, err := exec.CommandContext(ctx, "docker", verb, d.container).CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s %s: %w: %s", verb, d.container, err, strings.TrimSpace(string(out)))
	}
	return nil
}
