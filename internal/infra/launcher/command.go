package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/process"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
)

// passthroughEnv is the minimal host environment a command child inherits;
// everything else comes from the entry environment and caller overrides.
var passthroughEnv = []string{"PATH", "HOME", "USER", "SHELL"}

func (l *Launcher) startCommand(ctx context.Context, spec Spec) (domain.Handle, domain.IOStreams, domain.StopFn, error) {
	if spec.Command == "" {
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: command is required for stdio-proxy launch", domain.ErrInvalidCommand)
	}
	if _, err := exec.LookPath(spec.Command); err != nil {
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, spec.Command)
	}

	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = buildCommandEnv(spec.Env)
	groupCleanup := setupProcessHandling(cmd)

	streams, stderr, err := pipeStdio(cmd)
	if err != nil {
		return "", domain.IOStreams{}, nil, err
	}

	if err := cmd.Start(); err != nil {
		return "", domain.IOStreams{}, nil, fmt.Errorf("start command: %w", classifyStartError(err))
	}
	handle := domain.Handle("proc-" + uuid.NewString()[:8])

	l.logger.Info("command child started",
		telemetry.HandleField(string(handle)),
		zap.String("command", spec.Command),
		zap.Int("pid", cmd.Process.Pid),
	)

	downstream := l.logger.With(
		zap.String(telemetry.FieldLogSource, telemetry.LogSourceDownstream),
		zap.String("server", spec.Name),
		zap.String(telemetry.FieldLogStream, "stderr"),
	)
	go mirrorStderr(stderr, downstream)

	stop := l.makeStop(cmd, streams, stderr, groupCleanup)
	return handle, streams, stop, nil
}

func (l *Launcher) makeStop(cmd *exec.Cmd, streams domain.IOStreams, stderr io.Closer, groupCleanup process.Cleanup) domain.StopFn {
	// Wait may only be entered once per command; reap here and let both the
	// graceful and forced paths await the same channel.
	reaped := make(chan error, 1)
	var reapOnce sync.Once

	return func(stopCtx context.Context) error {
		if err := streams.Writer.Close(); err != nil {
			l.logger.Debug("close stdin failed", zap.Error(err))
		}
		reapOnce.Do(func() {
			go func() { reaped <- cmd.Wait() }()
		})

		var err error
		select {
		case err = <-reaped:
			err = process.NormalizeExitError(err)
			reaped <- nil
		case <-time.After(domain.DefaultStopTimeout):
			l.logger.Warn("child did not exit gracefully, force killing")
			if groupCleanup != nil {
				groupCleanup()
			}
			select {
			case err = <-reaped:
				err = process.NormalizeExitError(err)
				reaped <- nil
			case <-time.After(domain.DefaultStopTimeout):
				err = fmt.Errorf("child did not exit after kill")
			case <-stopCtx.Done():
				err = stopCtx.Err()
			}
		case <-stopCtx.Done():
			if groupCleanup != nil {
				groupCleanup()
			}
			err = stopCtx.Err()
		}

		if cerr := streams.Reader.Close(); cerr != nil {
			l.logger.Debug("close stdout failed", zap.Error(cerr))
		}
		if cerr := stderr.Close(); cerr != nil {
			l.logger.Debug("close stderr failed", zap.Error(cerr))
		}
		return err
	}
}

func pipeStdio(cmd *exec.Cmd) (domain.IOStreams, io.ReadCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return domain.IOStreams{}, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return domain.IOStreams{}, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return domain.IOStreams{}, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	return domain.IOStreams{Reader: stdout, Writer: stdin}, stderr, nil
}

func buildCommandEnv(env map[string]string) []string {
	merged := make(map[string]string, len(env)+len(passthroughEnv))
	for _, key := range passthroughEnv {
		if val, ok := os.LookupEnv(key); ok {
			merged[key] = val
		}
	}
	for key, val := range env {
		merged[key] = val
	}
	return formatEnv(merged)
}
