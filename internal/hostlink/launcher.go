package hostlink

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/akshaybapat6365/dark-wallet/internal/logger"
)

// Launcher starts the execution host on demand. At most one process it
// started is alive at a time; a new one is started only after it exits.
type Launcher struct {
	args []string

	mu      sync.Mutex
	cmd     *exec.Cmd
	running bool
}

// NewLauncher splits command on whitespace. An empty command returns nil.
func NewLauncher(command string) *Launcher {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil
	}
	return &Launcher{args: args}
}

// Ensure starts the host unless the process it launched is still running.
func (l *Launcher) Ensure(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	cmd := exec.Command(l.args[0], l.args[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start host: %w", err)
	}
	l.cmd = cmd
	l.running = true
	logger.Info(ctx, "execution host launched", "command", l.args[0], "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		l.mu.Lock()
		if l.cmd == cmd {
			l.running = false
		}
		l.mu.Unlock()
		logger.Warn(context.Background(), "execution host exited", "pid", cmd.Process.Pid, "error", err)
	}()
	return nil
}

// Stop kills the process started by Ensure, if any. A nil Launcher is a
// no-op.
func (l *Launcher) Stop() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running || l.cmd == nil {
		return nil
	}
	return l.cmd.Process.Kill()
}
