package nft

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"grimm.is/nftctl/internal/brand"
	"grimm.is/nftctl/internal/host"
)

// Process is a running interactive tool as seen by the session. Only the
// session reads or writes its pipes.
type Process interface {
	// Stdin receives one command line per write.
	Stdin() io.WriteCloser
	// Stdout carries stdout and stderr merged, in the order the tool wrote them.
	Stdout() io.Reader
	// Kill terminates the process. Safe to call more than once.
	Kill() error
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the exit status, valid after Done is closed.
	Err() error
}

// Launcher starts a new interactive process.
type Launcher interface {
	Launch(ctx context.Context) (Process, error)
}

// DefaultArgs put nft into interactive mode with handles and echo enabled,
// which the handle parsing and jump scanning rely on.
var DefaultArgs = []string{"--interactive", "--handle", "--echo"}

// ExecLauncher starts the real nft binary.
type ExecLauncher struct {
	// Binary defaults to "nft".
	Binary string
	// Args replaces DefaultArgs when non-nil.
	Args []string
	// Namespace, when set, starts the process inside that named netns.
	Namespace string
	Env       []string
}

// Launch starts the binary with stdout and stderr sharing one pipe.
func (l *ExecLauncher) Launch(ctx context.Context) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	binary := l.Binary
	if binary == "" {
		binary = brand.NftBinary
	}
	args := l.Args
	if args == nil {
		args = DefaultArgs
	}

	// Not CommandContext: the process must outlive the launch context.
	cmd := exec.Command(binary, args...)
	if len(l.Env) > 0 {
		cmd.Env = append(os.Environ(), l.Env...)
	}
	configureProcAttr(cmd)

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = w
	cmd.Stderr = w

	stdin, err := cmd.StdinPipe()
	if err != nil {
		r.Close()
		w.Close()
		return nil, fmt.Errorf("failed to create input pipe: %w", err)
	}

	err = host.InNamespace(l.Namespace, cmd.Start)
	// The child holds its own copy of the write end; ours must go so the
	// reader sees EOF when the child exits.
	w.Close()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to start %s: %w", binary, err)
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		out:   r,
		done:  make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *os.File

	done     chan struct{}
	err      error
	killOnce sync.Once
}

func (p *execProcess) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *execProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *execProcess) Stdout() io.Reader     { return p.out }
func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *execProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		p.stdin.Close()
		select {
		case <-p.done:
			return
		default:
		}
		if kerr := p.cmd.Process.Kill(); kerr != nil && kerr != os.ErrProcessDone {
			err = kerr
		}
	})
	return err
}
