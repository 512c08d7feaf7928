// Package launcher spawns child MCP servers with piped stdio, either inside
// a container engine or as a direct command process.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// Spec describes one child to spawn. The Method tag selects the fan-out
// branch.
type Spec struct {
	Method  domain.LaunchMethod
	Name    string
	Prefix  string
	Image   string
	Command string
	Args    []string
	Env     map[string]string
}

// Launcher starts children. When Start returns, the child is live and its
// pipes are usable; if later initialization fails the caller must invoke the
// returned StopFn.
type Launcher struct {
	logger *zap.Logger
	engine string
}

// Options configures a Launcher.
type Options struct {
	Logger *zap.Logger
	// Engine is the container engine binary, "podman" by default.
	Engine string
}

func New(opts Options) *Launcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := opts.Engine
	if engine == "" {
		engine = "podman"
	}
	return &Launcher{
		logger: logger.Named("launcher"),
		engine: engine,
	}
}

// Start spawns the child described by spec and returns its handle, pipes,
// and teardown.
func (l *Launcher) Start(ctx context.Context, spec Spec) (domain.Handle, domain.IOStreams, domain.StopFn, error) {
	switch spec.Method {
	case domain.LaunchPodman:
		return l.startContainer(ctx, spec)
	case domain.LaunchStdioProxy:
		return l.startCommand(ctx, spec)
	case domain.LaunchRemoteHTTP:
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: remote-http has no transport in this release", domain.ErrUnsupportedLaunchMethod)
	default:
		return "", domain.IOStreams{}, nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedLaunchMethod, spec.Method)
	}
}

func formatEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := sortedKeys(env)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s=%s", k, env[k]))
	}
	return out
}

func sortedKeys(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for key := range env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func classifyStartError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, err.Error())
	}
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, err.Error())
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.Is(pathErr.Err, exec.ErrNotFound) || errors.Is(pathErr.Err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrExecutableNotFound, err.Error())
		}
		if errors.Is(pathErr.Err, os.ErrPermission) {
			return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, err.Error())
		}
	}
	return err
}
