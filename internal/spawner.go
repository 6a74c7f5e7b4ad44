package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/dmitrymomot/bedrock/pkg/ipc"
)

// Process is a running worker as seen by the primary.
type Process interface {
	Pid() int
	Signal(sig os.Signal) error
	Kill() error
	// Wait blocks until the process exits and returns its exit code.
	// A process killed by a signal reports 128 plus the signal number.
	Wait() (int, error)
}

// Spawner starts worker processes.
type Spawner interface {
	// Spawn starts worker id and returns it with the primary's end of its
	// channel. Title is the worker's process title.
	Spawn(ctx context.Context, id int, title string) (Process, *ipc.Conn, error)
}

// execSpawner re-executes the current binary with the same arguments.
// The worker finds its channel on ipc.ReadFD and ipc.WriteFD.
type execSpawner struct {
	stdout io.Writer
	stderr io.Writer
}

func (s *execSpawner) Spawn(_ context.Context, id int, title string) (Process, *ipc.Conn, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, nil, errors.Join(ErrSpawn, err)
	}

	// toWorker carries primary -> worker messages, fromWorker the reverse.
	toWorkerR, toWorkerW, err := os.Pipe()
	if err != nil {
		return nil, nil, errors.Join(ErrSpawn, err)
	}
	fromWorkerR, fromWorkerW, err := os.Pipe()
	if err != nil {
		toWorkerR.Close()
		toWorkerW.Close()
		return nil, nil, errors.Join(ErrSpawn, err)
	}

	if title == "" {
		title = exe
	}
	cmd := &exec.Cmd{
		Path:       exe,
		Args:       append([]string{title}, os.Args[1:]...),
		Env:        append(os.Environ(), WorkerEnv+"="+strconv.Itoa(id)),
		Stdin:      os.Stdin,
		Stdout:     s.stdout,
		Stderr:     s.stderr,
		ExtraFiles: []*os.File{toWorkerR, fromWorkerW}, // fd 3 and 4 in the child
	}
	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{toWorkerR, toWorkerW, fromWorkerR, fromWorkerW} {
			f.Close()
		}
		return nil, nil, fmt.Errorf("%w %d: %w", ErrSpawn, id, err)
	}

	// The child holds its own copies now.
	toWorkerR.Close()
	fromWorkerW.Close()

	conn := ipc.NewConn(fromWorkerR, toWorkerW, fromWorkerR, toWorkerW)
	return &execProcess{cmd: cmd}, conn, nil
}

type execProcess struct {
	cmd *exec.Cmd
}

func (p *execProcess) Pid() int { return p.cmd.Process.Pid }

func (p *execProcess) Signal(sig os.Signal) error { return p.cmd.Process.Signal(sig) }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if p.cmd.ProcessState == nil {
		return 1, err
	}
	if status, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return p.cmd.ProcessState.ExitCode(), err
}
