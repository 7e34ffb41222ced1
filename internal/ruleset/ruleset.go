package ruleset

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/host"
	"grimm.is/nftctl/internal/logging"
	"grimm.is/nftctl/internal/metrics"
	"grimm.is/nftctl/internal/nft"
)

// Options configure a Ruleset and every resource created from it.
type Options struct {
	// ReadyTimeout bounds how long an operation waits for its resource to
	// finish loading.
	ReadyTimeout time.Duration
	Logger       *logging.Logger
	Metrics      *metrics.Registry
	// CheckDevice is called before a netdev base chain is created. Nil
	// skips the check.
	CheckDevice func(name string) error
}

// Ruleset is the root of the resource hierarchy. All resources created from
// it share its executor.
type Ruleset struct {
	exec    nft.Executor
	opts    Options
	log     *logging.Logger
	metrics *metrics.Registry

	// session is set when the ruleset started the session itself.
	session *nft.Session
}

// New returns a ruleset issuing commands through exec.
func New(exec nft.Executor, opts Options) *Ruleset {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = nft.DefaultReadyTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Get()
	}
	return &Ruleset{
		exec:    exec,
		opts:    opts,
		log:     opts.Logger.WithComponent("ruleset"),
		metrics: opts.Metrics,
	}
}

// Open starts an nft session as described by cfg.Session and returns a
// ruleset that owns it.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*Ruleset, error) {
	sc := cfg.SessionOrDefault()
	launcher := &nft.ExecLauncher{
		Binary:    sc.Binary,
		Args:      sc.Args,
		Namespace: sc.Namespace,
	}
	if opts.CheckDevice == nil {
		ns := sc.Namespace
		opts.CheckDevice = func(name string) error {
			return host.InNamespace(ns, func() error { return host.LinkExists(name) })
		}
	}
	return OpenWithLauncher(ctx, launcher, cfg, opts)
}

// OpenWithLauncher is Open with a caller-supplied launcher.
func OpenWithLauncher(ctx context.Context, launcher nft.Launcher, cfg *config.Config, opts Options) (*Ruleset, error) {
	sc := cfg.SessionOrDefault()

	timeout, err := config.ParseDuration(sc.Timeout, 0)
	if err != nil {
		return nil, fmt.Errorf("session timeout: %w", err)
	}
	if opts.ReadyTimeout <= 0 {
		if opts.ReadyTimeout, err = config.ParseDuration(sc.ReadyTimeout, 0); err != nil {
			return nil, fmt.Errorf("session ready_timeout: %w", err)
		}
	}
	retry, err := retryConfig(sc.Retry)
	if err != nil {
		return nil, err
	}

	session := nft.NewSession(launcher, nft.Options{
		Prompt:      sc.Prompt,
		ErrorMarker: sc.ErrorMarker,
		Timeout:     timeout,
		Logger:      opts.Logger,
		Metrics:     opts.Metrics,
	})
	if err := session.Start(ctx); err != nil {
		session.Close()
		return nil, err
	}

	var exec nft.Executor = session
	if retry.MaxAttempts > 1 {
		exec = nft.NewRestartingExecutor(session, retry, opts.Logger)
	}

	rs := New(exec, opts)
	rs.session = session
	return rs, nil
}

func retryConfig(rc *config.RetryConfig) (nft.RetryConfig, error) {
	cfg := nft.DefaultRetryConfig()
	if rc == nil {
		return cfg, nil
	}
	if rc.MaxAttempts > 0 {
		cfg.MaxAttempts = rc.MaxAttempts
	}
	var err error
	if cfg.InitialDelay, err = config.ParseDuration(rc.InitialDelay, cfg.InitialDelay); err != nil {
		return cfg, fmt.Errorf("retry initial_delay: %w", err)
	}
	if cfg.MaxDelay, err = config.ParseDuration(rc.MaxDelay, cfg.MaxDelay); err != nil {
		return cfg, fmt.Errorf("retry max_delay: %w", err)
	}
	return cfg, nil
}

// Session returns the session the ruleset owns, or nil when it was built
// with New.
func (rs *Ruleset) Session() *nft.Session {
	return rs.session
}

// Close terminates the owned session. Rulesets built with New leave the
// executor alone.
func (rs *Ruleset) Close() error {
	if rs.session == nil {
		return nil
	}
	return rs.session.Close()
}

// Exec sends a raw command.
func (rs *Ruleset) Exec(ctx context.Context, tokens ...string) (string, error) {
	return rs.exec.Execute(ctx, nft.NewCommand(tokens...))
}

// List returns the whole ruleset listing.
func (rs *Ruleset) List(ctx context.Context) (string, error) {
	return rs.Exec(ctx, "list", "ruleset")
}

// Flush removes every table. Table handles created earlier are not told.
func (rs *Ruleset) Flush(ctx context.Context) error {
	_, err := rs.Exec(ctx, "flush", "ruleset")
	return err
}

// TableRef names a table in the kernel.
type TableRef struct {
	Family Family
	Name   string
}

func (r TableRef) String() string {
	return string(r.Family) + " " + r.Name
}

// Tables lists the tables currently in the kernel.
func (rs *Ruleset) Tables(ctx context.Context) ([]TableRef, error) {
	out, err := rs.Exec(ctx, "list", "tables")
	if err != nil {
		return nil, err
	}

	var refs []TableRef
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) != 3 || f[0] != "table" {
			continue
		}
		refs = append(refs, TableRef{Family: Family(f[1]), Name: f[2]})
	}
	return refs, nil
}

// NewTable returns an unloaded table handle.
func (rs *Ruleset) NewTable(name string, family Family) (*Table, error) {
	if err := checkName("table", name); err != nil {
		return nil, err
	}
	if family == "" {
		family = FamilyIP
	}
	if _, err := ParseFamily(string(family)); err != nil {
		return nil, err
	}

	t := &Table{name: name, family: family}
	t.resource = resource{
		rs:   rs,
		gate: nft.NewGate("table", string(family)+"/"+name, nil, rs.opts.ReadyTimeout),
	}
	return t, nil
}

// Table creates and loads a table.
func (rs *Ruleset) Table(ctx context.Context, name string, family Family, opts nft.LoadOptions) (*Table, error) {
	t, err := rs.NewTable(name, family)
	if err != nil {
		return nil, err
	}
	if err := t.Load(ctx, opts); err != nil {
		return nil, err
	}
	return t, nil
}
