// Package setup installs downloaded artifacts by running a job's setup instructions.
package setup

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
)

// ErrCommand is returned when a setup command exits unsuccessfully
var ErrCommand = errors.New("setup command failed")

// CommandRunner executes external commands.
// This interface allows for mocking command execution in tests.
type CommandRunner interface {
	// Run executes name with args in dir and returns its standard output
	Run(ctx context.Context, dir, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes a command and returns stdout. A failing command's stderr is
// joined to ErrCommand.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return stdoutBuf.String(), ctx.Err()
		}
		if stderr := strings.TrimSpace(stderrBuf.String()); stderr != "" {
			return stdoutBuf.String(), errors.Join(ErrCommand, errors.New(stderr))
		}
		return stdoutBuf.String(), errors.Join(ErrCommand, err)
	}
	return stdoutBuf.String(), nil
}

// MockRunner implements CommandRunner for testing.
type MockRunner struct {
	RunFunc func(ctx context.Context, dir, name string, args ...string) (string, error)
	// Calls records every command as name followed by its args
	Calls [][]string
}

// Run records the call and delegates to RunFunc when set
func (m *MockRunner) Run(ctx context.Context, dir, name string, args ...string) (string, error) {
	m.Calls = append(m.Calls, append([]string{name}, args...))
	if m.RunFunc != nil {
		return m.RunFunc(ctx, dir, name, args...)
	}
	return "", nil
}

var (
	_ CommandRunner = ExecRunner{}
	_ CommandRunner = (*MockRunner)(nil)
)
