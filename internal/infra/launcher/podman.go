package launcher

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/process"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
)

// containerNamePrefix namespaces every container this process creates.
const containerNamePrefix = "mcp-registry-"

func (l *Launcher) startContainer(ctx context.Context, spec Spec) (domain.Handle, domain.IOStreams, domain.StopFn, error) {
	if spec.Image == "" {
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: container image is required for podman launch", domain.ErrInvalidCommand)
	}
	enginePath, err := exec.LookPath(l.engine)
	if err != nil {
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: %s not on PATH", domain.ErrExecutableNotFound, l.engine)
	}

	if err := l.pullImage(ctx, enginePath, spec.Image); err != nil {
		return "", domain.IOStreams{}, nil, err
	}

	name := containerNamePrefix + spec.Prefix
	args := []string{"run", "-i", "--rm", "--name", name}
	for _, kv := range formatEnv(spec.Env) {
		args = append(args, "-e", kv)
	}
	args = append(args, spec.Image)

	cmd := exec.CommandContext(ctx, enginePath, args...)
	groupCleanup := setupProcessHandling(cmd)

	streams, stderr, err := pipeStdio(cmd)
	if err != nil {
		return "", domain.IOStreams{}, nil, err
	}

	if err := cmd.Start(); err != nil {
		return "", domain.IOStreams{}, nil, fmt.Errorf("start container: %w", classifyStartError(err))
	}

	l.logger.Info("container child started",
		telemetry.HandleField(name),
		zap.String("image", spec.Image),
	)

	downstream := l.logger.With(
		zap.String(telemetry.FieldLogSource, telemetry.LogSourceDownstream),
		zap.String("server", spec.Name),
		zap.String(telemetry.FieldLogStream, "stderr"),
	)
	go mirrorStderr(stderr, downstream)

	forced := false
	commandStop := l.makeStop(cmd, streams, stderr, func() {
		forced = true
		if groupCleanup != nil {
			groupCleanup()
		}
	})
	stop := func(stopCtx context.Context) error {
		err := commandStop(stopCtx)
		if err != nil || forced {
			// --rm reclaims the container record once the engine process
			// exits on its own; after a forced teardown or a failed stop the
			// container is killed by name.
			l.killContainer(name)
		}
		return err
	}

	return domain.Handle(name), streams, stop, nil
}

func (l *Launcher) pullImage(ctx context.Context, enginePath, image string) error {
	pullCtx, cancel := context.WithTimeout(ctx, domain.DefaultPullTimeout)
	defer cancel()

	l.logger.Info("pulling image", zap.String("image", image))
	cmd := exec.CommandContext(pullCtx, enginePath, "pull", image)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pull %s: %w: %s", image, err, firstLine(out))
	}
	return nil
}

func (l *Launcher) killContainer(name string) {
	enginePath, err := exec.LookPath(l.engine)
	if err != nil {
		return
	}
	killCtx, cancel := context.WithTimeout(context.Background(), domain.DefaultStopTimeout)
	defer cancel()

	cmd := exec.CommandContext(killCtx, enginePath, "kill", name)
	if err := cmd.Start(); err != nil {
		l.logger.Debug("container kill failed", zap.Error(err))
		return
	}
	if err := process.Wait(killCtx, cmd); err != nil {
		l.logger.Debug("container kill wait failed", zap.Error(err))
	}
}

func firstLine(out []byte) string {
	for i, b := range out {
		if b == '\n' {
			return string(out[:i])
		}
	}
	return string(out)
}
