package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"brain/internal/docker"
)

// dockerBackend isolates each task inside a container running the
// configured agent image, binding the resolved workdir to /workspace.
type dockerBackend struct {
	client docker.IClient
	image  string
}

// NewDockerBackend returns a Backend that spawns one container per task.
func NewDockerBackend(client docker.IClient, image string) Backend {
	return &dockerBackend{client: client, image: image}
}

func (b *dockerBackend) Start(ctx context.Context, spec Spec, onLine func(line string)) (Handle, error) {
	containerID, err := b.client.RunContainer(ctx, b.image, spec.Workdir, nil, spec.Env, "")
	if err != nil {
		return Handle{}, fmt.Errorf("run container: %w", err)
	}

	cmd := append([]string{spec.Agent}, spec.Args...)
	go func() {
		output, execErr := b.client.Exec(context.Background(), containerID, cmd)
		for _, line := range strings.Split(output, "\n") {
			if line != "" && onLine != nil {
				onLine(line)
			}
		}
		if execErr != nil && onLine != nil {
			onLine(fmt.Sprintf("agent exec error: %v", execErr))
		}
	}()

	return Handle{ID: containerID}, nil
}

// Signal stops the container, giving the agent a grace period to shut down
// cleanly (docker's ContainerStop already does SIGTERM-then-SIGKILL), and
// then force-removes it.
func (b *dockerBackend) Signal(ctx context.Context, h Handle) error {
	return b.client.StopContainer(ctx, h.ID)
}

// Kill makes the same StopContainer call as Signal (graceful stop, then
// force remove); there is no separate immediate-kill path.
func (b *dockerBackend) Kill(ctx context.Context, h Handle) error {
	return b.client.StopContainer(ctx, h.ID)
}

// Wait polls exec-based completion since the Docker API here exposes no
// blocking wait primitive; a short poll loop is adequate for task-scale
// concurrency.
func (b *dockerBackend) Wait(ctx context.Context, h Handle) Result {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{TimedOut: true, Err: ctx.Err()}
		case <-ticker.C:
			out, err := b.client.Exec(ctx, h.ID, []string{"test", "-f", "/workspace/.agent_done"})
			_ = out
			if err == nil {
				return Result{ExitCode: 0}
			}
		}
	}
}
