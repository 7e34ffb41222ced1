// Package nfttest provides an in-process stand-in for `nft --interactive`
// so sessions and resources can be tested without root or a kernel.
package nfttest

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"grimm.is/nftctl/internal/nft"
)

// ErrKilled is the exit status of a fake process that was killed.
var ErrKilled = errors.New("signal: killed")

// Fake implements nft.Launcher. Ruleset state lives in the Fake, not in the
// process, so it survives restarts the way kernel state would.
type Fake struct {
	// Prompt defaults to nft.DefaultPrompt.
	Prompt string
	// NoEcho disables the echo of each input line.
	NoEcho bool
	// Banner lines are printed before the first prompt.
	Banner []string

	kernel *Kernel

	mu         sync.Mutex
	commands   []string
	launches   int
	failLaunch int
	stall      func(string) bool
	delay      time.Duration
	live       []*process
}

// New returns a Fake with an empty ruleset.
func New() *Fake {
	return &Fake{kernel: NewKernel()}
}

// Kernel exposes the emulated ruleset for assertions.
func (f *Fake) Kernel() *Kernel {
	return f.kernel
}

// Commands returns every line received so far, across all launches.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// Launches returns how many processes have been started.
func (f *Fake) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// FailLaunches makes the next n launches fail.
func (f *Fake) FailLaunches(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failLaunch = n
}

// StallOn makes the process go silent after reading a matching line. The
// line is still recorded but never answered. Pass nil to clear.
func (f *Fake) StallOn(match func(line string) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stall = match
}

// StallOnce stalls on the first line matching prefix, then clears itself.
func (f *Fake) StallOnce(prefix string) {
	var once sync.Once
	f.StallOn(func(line string) bool {
		hit := false
		if strings.HasPrefix(line, prefix) {
			once.Do(func() { hit = true })
		}
		return hit
	})
}

// SetDelay delays every answer by d.
func (f *Fake) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// Crash kills every running process as if the tool had died.
func (f *Fake) Crash() {
	f.mu.Lock()
	live := f.live
	f.live = nil
	f.mu.Unlock()
	for _, p := range live {
		p.exit(ErrKilled)
	}
}

// Launch implements nft.Launcher.
func (f *Fake) Launch(ctx context.Context) (nft.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.launches++
	if f.failLaunch > 0 {
		f.failLaunch--
		f.mu.Unlock()
		return nil, errors.New("exec: \"nft\": executable file not found in $PATH")
	}
	p := newProcess()
	f.live = append(f.live, p)
	f.mu.Unlock()

	go f.serve(p)
	return p, nil
}

func (f *Fake) prompt() string {
	if f.Prompt == "" {
		return nft.DefaultPrompt
	}
	return f.Prompt
}

func (f *Fake) serve(p *process) {
	defer p.exit(nil)

	out := bufio.NewWriter(p.outW)
	emit := func(s string) bool {
		if _, err := out.WriteString(s); err != nil {
			return false
		}
		return out.Flush() == nil
	}

	for _, b := range f.Banner {
		if !emit(b + "\n") {
			return
		}
	}
	if !emit(f.prompt()) {
		return
	}

	sc := bufio.NewScanner(p.stdinR)
	for sc.Scan() {
		line := sc.Text()

		f.mu.Lock()
		f.commands = append(f.commands, line)
		stall := f.stall != nil && f.stall(line)
		delay := f.delay
		f.mu.Unlock()

		if !f.NoEcho && !emit(line+"\n") {
			return
		}
		if stall {
			<-p.done
			return
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-p.done:
				return
			}
		}

		body, errLines := f.kernel.Exec(line)
		for _, l := range body {
			if !emit(l + "\n") {
				return
			}
		}
		for _, l := range errLines {
			if !emit(l + "\n") {
				return
			}
		}
		if !emit(f.prompt()) {
			return
		}
	}
}

type process struct {
	stdinR *io.PipeReader
	stdinW *io.PipeWriter
	outR   *io.PipeReader
	outW   *io.PipeWriter

	once sync.Once
	done chan struct{}
	err  error
}

func newProcess() *process {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &process{
		stdinR: inR,
		stdinW: inW,
		outR:   outR,
		outW:   outW,
		done:   make(chan struct{}),
	}
}

func (p *process) exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
		p.stdinR.CloseWithError(io.ErrClosedPipe)
		p.stdinW.Close()
		p.outW.Close()
	})
}

func (p *process) Stdin() io.WriteCloser { return p.stdinW }
func (p *process) Stdout() io.Reader     { return p.outR }
func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *process) Kill() error {
	p.exit(ErrKilled)
	return nil
}
