package interp

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

const gracefulTimeout = 2 * time.Second

// DefaultCommand is the standard toplevel invocation.
var DefaultCommand = []string{"ocaml", "-noprompt", "-nopromptcont"}

// Process wraps one interpreter subprocess speaking line-oriented text over
// its standard streams. The subprocess runs in its own process group so
// Terminate reaches any children it forks.
type Process struct {
	cmd    *exec.Cmd
	stdout *bufio.Reader

	mu     sync.Mutex
	stdin  io.WriteCloser
	closed bool

	termOnce sync.Once
}

// Start spawns the interpreter given as an argv slice (DefaultCommand if
// empty). TERM=console keeps the interpreter from emitting format sequences.
func Start(command []string) (*Process, error) {
	if len(command) == 0 {
		command = DefaultCommand
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = append(os.Environ(), "TERM=console")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	// The toplevel reports errors on stderr; fold them into the same stream
	// so they reach the chat too.
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("start %s: %w", command[0], err)
	}

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdoutPipe),
	}, nil
}

// WriteLine sends one line to the interpreter's stdin, appending a newline.
// The pipe is unbuffered on our side, so the write reaches the interpreter
// immediately.
func (p *Process) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("stdin closed")
	}
	if _, err := io.WriteString(p.stdin, line+"\n"); err != nil {
		return fmt.Errorf("write to interpreter: %w", err)
	}
	return nil
}

// ReadLine blocks until one newline-terminated chunk is available (or the
// stream ends) and returns it, newline included. At EOF any trailing partial
// line is returned alongside the error.
func (p *Process) ReadLine() (string, error) {
	return p.stdout.ReadString('\n')
}

// Pid returns the subprocess pid, for logging.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Terminate stops the subprocess: SIGTERM to the whole process group, a
// bounded wait, then SIGKILL if it has not exited. Safe to call twice.
func (p *Process) Terminate() {
	p.termOnce.Do(p.terminate)
}

func (p *Process) terminate() {
	p.mu.Lock()
	if !p.closed {
		p.stdin.Close()
		p.closed = true
	}
	p.mu.Unlock()

	// Setpgid makes the child the leader of its own group, so -pid signals
	// the group.
	pid := p.cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		p.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(gracefulTimeout):
		syscall.Kill(-pid, syscall.SIGKILL)
		<-done
	}
}
