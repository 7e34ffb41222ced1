package nft

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"grimm.is/nftctl/internal/logging"
	"grimm.is/nftctl/internal/metrics"
)

// Executor runs one command and returns the body text. Session and
// RestartingExecutor both implement it; resources depend only on this.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (string, error)
}

// Options configure a Session.
type Options struct {
	Prompt      string
	ErrorMarker string
	// Timeout bounds each read while an exchange is in flight, and the wait
	// for the first prompt after a start.
	Timeout time.Duration
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// DefaultOptions returns the settings for a stock nft binary.
func DefaultOptions() Options {
	return Options{
		Prompt:      DefaultPrompt,
		ErrorMarker: DefaultErrorMarker,
		Timeout:     15 * time.Second,
	}
}

// maxLineSize bounds a single output line (large set listings are one line).
const maxLineSize = 16 << 20

// Session owns one interactive nft process.
type Session struct {
	id       string
	launcher Launcher
	opts     Options
	log      *logging.Logger
	metrics  *metrics.Registry

	// mu serializes exchanges, starts and restarts.
	mu sync.Mutex

	// connMu guards conn and closed so Close can kill a hung exchange
	// without waiting for mu.
	connMu sync.Mutex
	conn   *conn
	closed bool

	ready atomic.Bool
}

// NewSession creates a session. Start must be called before Execute.
func NewSession(launcher Launcher, opts Options) *Session {
	def := DefaultOptions()
	if opts.Prompt == "" {
		opts.Prompt = def.Prompt
	}
	if opts.ErrorMarker == "" {
		opts.ErrorMarker = def.ErrorMarker
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		launcher: launcher,
		opts:     opts,
		log:      opts.Logger.WithComponent("nft").WithFields(map[string]any{"session": id[:8]}),
		metrics:  opts.Metrics,
	}
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Running reports whether the process is up and has shown its first prompt.
func (s *Session) Running() bool {
	if !s.ready.Load() {
		return false
	}
	c := s.current()
	return c != nil && c.alive()
}

// Start launches the process and waits for its first prompt. Starting a
// running session is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

// Restart kills the current process, if any, and starts a fresh one.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, _ := s.swap(nil); old != nil {
		old.shutdown()
	}
	s.metrics.Restarts.Inc()
	s.log.Warn("restarting nft session")
	return s.startLocked(ctx)
}

// Close kills the process. Further commands fail with ErrSessionClosed,
// which is also ErrSessionDead.
func (s *Session) Close() error {
	s.connMu.Lock()
	s.closed = true
	c := s.conn
	s.conn = nil
	s.connMu.Unlock()

	s.ready.Store(false)
	s.metrics.SetSessionUp(false)
	if c == nil {
		return nil
	}
	c.shutdown()
	s.log.Debug("session closed")
	return nil
}

// Execute writes cmd and returns the body of the response. Concurrent
// callers are served one at a time.
func (s *Session) Execute(ctx context.Context, cmd Command) (string, error) {
	if cmd.Empty() {
		return "", usageErrorf("empty command")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	out, err := s.exchange(ctx, cmd)
	s.metrics.RecordCommand(cmd.Verb(), resultLabel(err), time.Since(start))
	return out, err
}

func (s *Session) exchange(ctx context.Context, cmd Command) (string, error) {
	// A caller that gave up while queued on mu must not reach the tool.
	if err := ctx.Err(); err != nil {
		return "", &TimeoutError{Command: cmd, After: s.opts.Timeout, Cause: err}
	}

	c, closed := s.currentState()
	if closed {
		return "", closedErrorf("command %q", cmd.String())
	}
	if c == nil || !s.ready.Load() {
		return "", deadErrorf("session not started")
	}
	if !c.alive() {
		s.markDead(c, "process exited")
		return "", deadErrorf("process exited: %v", c.proc.Err())
	}

	c.drain(s.log)

	s.log.Debug("exec", "command", cmd.String())
	if _, err := io.WriteString(c.proc.Stdin(), cmd.String()+"\n"); err != nil {
		s.markDead(c, "write failed")
		return "", deadErrorf("write %q: %v", cmd.String(), err)
	}

	f := NewFramer(cmd, s.opts.Prompt, s.opts.ErrorMarker)
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				s.markDead(c, "output closed mid-exchange")
				return "", deadErrorf("process exited while running %q", cmd.String())
			}
			if f.Feed(line) {
				return f.Result()
			}
			timer.Reset(s.opts.Timeout)
		case <-timer.C:
			return "", s.abandon(c, cmd, f, nil)
		case <-ctx.Done():
			return "", s.abandon(c, cmd, f, ctx.Err())
		}
	}
}

// abandon logs the partial exchange and kills the process: whatever the
// tool prints later would be framed as the answer to the next command.
func (s *Session) abandon(c *conn, cmd Command, f *Framer, cause error) error {
	partial := f.Response()
	s.log.Error("abandoning nft exchange",
		"command", cmd.String(),
		"state", f.State().String(),
		"echo", partial.Echo,
		"response", partial.Text(),
		"error", joinLines(partial.Error),
		"timeout", s.opts.Timeout.String(),
		"cause", errString(cause),
	)
	s.metrics.Timeouts.Inc()
	s.markDead(c, "exchange abandoned")
	return &TimeoutError{
		Command: cmd,
		After:   s.opts.Timeout,
		Partial: partial,
		Cause:   cause,
	}
}

func (s *Session) startLocked(ctx context.Context) error {
	s.connMu.Lock()
	closed := s.closed
	running := s.conn != nil && s.conn.alive()
	s.connMu.Unlock()

	if closed {
		return closedErrorf("start")
	}
	if running && s.ready.Load() {
		return nil
	}

	proc, err := s.launcher.Launch(ctx)
	if err != nil {
		return deadErrorf("launch: %v", err)
	}
	c := newConn(proc, s.opts.Prompt)

	if err := s.awaitPrompt(ctx, c); err != nil {
		c.shutdown()
		return err
	}

	old, ok := s.swap(c)
	if old != nil {
		old.shutdown()
	}
	if !ok {
		return closedErrorf("closed while starting")
	}
	s.ready.Store(true)
	s.metrics.SetSessionUp(true)
	s.log.Info("nft session ready")
	return nil
}

// awaitPrompt consumes any banner output up to the first prompt.
func (s *Session) awaitPrompt(ctx context.Context, c *conn) error {
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	f := NewFramer(Command{}, s.opts.Prompt, s.opts.ErrorMarker)
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return deadErrorf("process exited before first prompt: %v", c.proc.Err())
			}
			if f.Classify(line) == LinePrompt {
				return nil
			}
			s.log.Debug("startup output", "line", line)
		case <-timer.C:
			s.metrics.Timeouts.Inc()
			return &TimeoutError{After: s.opts.Timeout}
		case <-ctx.Done():
			return &TimeoutError{After: s.opts.Timeout, Cause: ctx.Err()}
		}
	}
}

func (s *Session) markDead(c *conn, reason string) {
	c.shutdown()
	s.connMu.Lock()
	if s.conn == c {
		s.ready.Store(false)
	}
	s.connMu.Unlock()
	s.metrics.SetSessionUp(false)
	s.log.Warn("nft session is down", "reason", reason)
}

func (s *Session) current() *conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Session) currentState() (*conn, bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn, s.closed
}

// swap installs c as the current generation and returns the previous one.
// It refuses (and kills c) once the session has been closed.
func (s *Session) swap(c *conn) (*conn, bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	old := s.conn
	if s.closed && c != nil {
		c.shutdown()
		return old, false
	}
	s.conn = c
	return old, true
}

// conn is one process generation and the goroutine reading its output.
type conn struct {
	proc  Process
	lines chan string
	stop  chan struct{}
	once  sync.Once
}

func newConn(proc Process, prompt string) *conn {
	c := &conn{
		proc:  proc,
		lines: make(chan string, 256),
		stop:  make(chan struct{}),
	}
	go c.read(prompt)
	return c
}

func (c *conn) read(prompt string) {
	defer close(c.lines)
	r := c.proc.Stdout()
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	sc.Split(splitTokens(prompt))
	for sc.Scan() {
		select {
		case c.lines <- sc.Text():
		case <-c.stop:
			return
		}
	}
}

func (c *conn) alive() bool {
	select {
	case <-c.stop:
		return false
	case <-c.proc.Done():
		return false
	default:
		return true
	}
}

// drain discards output that arrived outside an exchange.
func (c *conn) drain(log *logging.Logger) {
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			log.Debug("discarding unsolicited output", "line", line)
		default:
			return
		}
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.stop)
		_ = c.proc.Kill()
	})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrAlreadyExists):
		return metrics.ResultAlreadyExists
	case errors.Is(err, ErrNotFound):
		return metrics.ResultNotFound
	case errors.Is(err, ErrTimeout):
		return metrics.ResultTimeout
	case errors.Is(err, ErrSessionDead):
		return metrics.ResultDead
	}
	return metrics.ResultFailed
}

func joinLines(lines []string) string {
	return Response{Body: lines}.Text()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
