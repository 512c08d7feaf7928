//go:build !linux && !darwin

package launcher

import (
	"os/exec"

	"github.com/tsoernes/mcp-registry/internal/infra/process"
)

func setupProcessHandling(cmd *exec.Cmd) process.Cleanup {
	return func() {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}
