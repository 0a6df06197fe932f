// ABOUTME: Child process abstraction and the os/exec backed spawner
// ABOUTME: Exposes stdin, stdout and stderr streams plus wait and kill

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// Process is a running child with piped standard streams.
type Process interface {
	// Stdin is the child's standard input.
	Stdin() io.WriteCloser
	// Stdout is the child's standard output.
	Stdout() io.Reader
	// Stderr is the child's standard error.
	Stderr() io.Reader
	// Wait blocks until the child exits. Callers must drain Stdout and
	// Stderr before calling Wait.
	Wait() error
	// Kill terminates the child. Killing an exited child is not an error.
	Kill() error
	// Pid returns the operating system process id, or 0 if unknown.
	Pid() int
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, cmd Command) (Process, error)
}

// ExecSpawner starts real operating system processes.
type ExecSpawner struct{}

// Spawn starts cmd. The child outlives ctx; ctx only bounds the start itself.
func (ExecSpawner) Spawn(ctx context.Context, c Command) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(c.Name, c.Args...) // #nosec G204 -- the operator chooses the server path
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	child := &ChildProcess{cmd: cmd}
	var err error
	if child.stdin, err = cmd.StdinPipe(); err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	if child.stdout, err = cmd.StdoutPipe(); err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if child.stderr, err = cmd.StderrPipe(); err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Name, err)
	}
	return child, nil
}

// ChildProcess is a Process backed by os/exec.
type ChildProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (c *ChildProcess) Stdin() io.WriteCloser { return c.stdin }
func (c *ChildProcess) Stdout() io.Reader     { return c.stdout }
func (c *ChildProcess) Stderr() io.Reader     { return c.stderr }
func (c *ChildProcess) Wait() error           { return c.cmd.Wait() }

func (c *ChildProcess) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *ChildProcess) Kill() error {
	if c.cmd.Process == nil {
		return nil
	}
	err := c.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
