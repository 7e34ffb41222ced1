package ruleset_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/logging"
	"grimm.is/nftctl/internal/metrics"
	"grimm.is/nftctl/internal/nft"
	"grimm.is/nftctl/internal/nft/nfttest"
	"grimm.is/nftctl/internal/ruleset"
)

type env struct {
	rs      *ruleset.Ruleset
	fake    *nfttest.Fake
	metrics *metrics.Registry
}

func setup(t *testing.T, readyTimeout time.Duration) env {
	t.Helper()
	fake := nfttest.New()
	reg := metrics.NewIsolated()

	s := nft.NewSession(fake, nft.Options{
		Timeout: 2 * time.Second,
		Logger:  logging.Discard(),
		Metrics: reg,
	})
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Close() })

	rs := ruleset.New(s, ruleset.Options{
		ReadyTimeout: readyTimeout,
		Logger:       logging.Discard(),
		Metrics:      reg,
	})
	return env{rs: rs, fake: fake, metrics: reg}
}

var none = nft.LoadOptions{}

func TestTable_LoadTwice(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "T", ruleset.FamilyIP, none)
	require.NoError(t, err)
	assert.Equal(t, nft.StateInitialized, tbl.State())

	c, err := tbl.Chain(ctx, "c", none)
	require.NoError(t, err)
	_, err = c.AppendRule(ctx, "ip saddr 10.0.0.1 drop")
	require.NoError(t, err)

	again, err := e.rs.NewTable("T", ruleset.FamilyIP)
	require.NoError(t, err)
	err = again.Load(ctx, none)
	assert.ErrorIs(t, err, nft.ErrAlreadyExists)
	assert.Equal(t, nft.StateUninitialized, again.State())

	reused, err := e.rs.Table(ctx, "T", ruleset.FamilyIP, nft.LoadOptions{Reuse: true})
	require.NoError(t, err)
	assert.Equal(t, nft.StateInitialized, reused.State())
	assert.Len(t, e.fake.Kernel().Rules("ip", "T", "c"), 1, "reuse leaves contents alone")

	flushed, err := e.rs.Table(ctx, "T", ruleset.FamilyIP, nft.LoadOptions{FlushExisting: true})
	require.NoError(t, err)
	assert.Equal(t, nft.StateInitialized, flushed.State())
	assert.Empty(t, e.fake.Kernel().Rules("ip", "T", "c"), "flush clears prior contents")
}

func TestRule_DetachedByFlush(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "T", ruleset.FamilyIP, none)
	require.NoError(t, err)
	a, err := tbl.Chain(ctx, "a", none)
	require.NoError(t, err)
	b, err := tbl.Chain(ctx, "b", none)
	require.NoError(t, err)

	ra, err := a.AppendRule(ctx, "accept")
	require.NoError(t, err)
	rb, err := b.AppendRule(ctx, "drop")
	require.NoError(t, err)

	require.NoError(t, a.Flush(ctx))
	assert.Zero(t, ra.Handle())
	assert.NotZero(t, rb.Handle(), "flushing a leaves b alone")
	assert.ErrorIs(t, ra.Delete(ctx), nft.ErrUsage)

	// A detached rule can be attached again.
	require.NoError(t, ra.Append(ctx, nil))
	assert.NotZero(t, ra.Handle())

	require.NoError(t, tbl.Flush(ctx))
	assert.Zero(t, ra.Handle())
	assert.Zero(t, rb.Handle())
	assert.Empty(t, e.fake.Kernel().Rules("ip", "T", "b"))
}

func TestScenario_JumpCleanupAndDelete(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "T", ruleset.FamilyIP, none)
	require.NoError(t, err)
	c1, err := tbl.Chain(ctx, "C1", none)
	require.NoError(t, err)
	c2, err := tbl.Chain(ctx, "C2", none)
	require.NoError(t, err)

	jump, err := c1.InsertRule(ctx, "jump C2")
	require.NoError(t, err)
	assert.NotZero(t, jump.Handle())

	listing, err := tbl.List(ctx)
	require.NoError(t, err)
	refs, err := nft.ScanJumps(listing, "C2")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "C1", refs[0].Chain)
	assert.Equal(t, jump.Handle(), refs[0].Handle)

	require.NoError(t, c2.Delete(ctx))
	assert.Equal(t, nft.StateDeleted, c2.State())

	listing, err = tbl.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, listing, "jump C2")
	assert.NotContains(t, listing, "chain C2")
	assert.Empty(t, e.fake.Kernel().Rules("ip", "T", "C1"))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.metrics.JumpCleanups))

	// The cleanup detached the Rule value; its stale handle is never sent.
	assert.Zero(t, jump.Handle())
	sent := len(e.fake.Commands())
	assert.ErrorIs(t, jump.Delete(ctx), nft.ErrUsage)
	assert.Len(t, e.fake.Commands(), sent)

	require.NoError(t, tbl.Delete(ctx))
	assert.Empty(t, e.fake.Kernel().Tables())

	_, err = tbl.List(ctx)
	assert.ErrorIs(t, err, nft.ErrUsage)
	assert.ErrorIs(t, tbl.Flush(ctx), nft.ErrUsage)
	assert.ErrorIs(t, tbl.Load(ctx, none), nft.ErrUsage)
	assert.ErrorIs(t, tbl.Delete(ctx), nft.ErrUsage)

	assert.ErrorIs(t, c1.Flush(ctx), nft.ErrUsage)
	_, err = c1.AppendRule(ctx, "accept")
	assert.ErrorIs(t, err, nft.ErrUsage)
	assert.ErrorIs(t, c1.Delete(ctx), nft.ErrUsage)

	assert.ErrorIs(t, jump.Delete(ctx), nft.ErrUsage)
	assert.ErrorIs(t, jump.Replace(ctx, "accept"), nft.ErrUsage)
}

func TestChain_DeleteRemovesGotoAndVmapJumps(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyINet, none)
	require.NoError(t, err)
	a, err := tbl.Chain(ctx, "a", none)
	require.NoError(t, err)
	b, err := tbl.Chain(ctx, "b", none)
	require.NoError(t, err)
	target, err := tbl.Chain(ctx, "target", none)
	require.NoError(t, err)

	_, err = a.AppendRule(ctx, "tcp dport 22 goto target")
	require.NoError(t, err)
	_, err = a.AppendRule(ctx, "tcp dport 80 accept")
	require.NoError(t, err)
	_, err = b.AppendRule(ctx, "ip protocol vmap { tcp : jump target }")
	require.NoError(t, err)

	removed, err := tbl.RemoveJumps(ctx, "target")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"tcp dport 80 accept"}, e.fake.Kernel().Rules("inet", "t", "a"))
	assert.Empty(t, e.fake.Kernel().Rules("inet", "t", "b"))

	require.NoError(t, target.Delete(ctx))
	assert.False(t, e.fake.Kernel().HasChain("inet", "t", "target"))
}

func TestRule_HandleLifecycle(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	c, err := tbl.Chain(ctx, "c", none)
	require.NoError(t, err)

	r := c.NewRule("ip daddr 192.0.2.1 drop")
	assert.Zero(t, r.Handle())

	require.NoError(t, r.Append(ctx, nil))
	assert.Positive(t, r.Handle())
	assert.ErrorIs(t, r.Append(ctx, nil), nft.ErrUsage, "already attached")

	require.NoError(t, r.Delete(ctx))
	assert.Zero(t, r.Handle())
	assert.ErrorIs(t, r.Delete(ctx), nft.ErrUsage)

	assert.ErrorIs(t, c.NewRule("  ").Append(ctx, nil), nft.ErrUsage)
	assert.ErrorIs(t, c.NewRule("accept\ndrop").Insert(ctx, nil), nft.ErrUsage)
	assert.ErrorIs(t, c.NewRule("accept").Replace(ctx, "drop"), nft.ErrUsage)
}

func TestRule_Positions(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	c, err := tbl.Chain(ctx, "c", none)
	require.NoError(t, err)
	other, err := tbl.Chain(ctx, "other", none)
	require.NoError(t, err)

	first, err := c.AppendRule(ctx, "ip saddr 10.0.0.1 accept")
	require.NoError(t, err)
	last, err := c.AppendRule(ctx, "ip saddr 10.0.0.3 accept")
	require.NoError(t, err)

	mid := c.NewRule("ip saddr 10.0.0.2 accept")
	require.NoError(t, mid.Append(ctx, first))

	top := c.NewRule("counter")
	require.NoError(t, top.Insert(ctx, mid))

	head, err := c.InsertRule(ctx, "ct state invalid drop")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"ct state invalid drop",
		"ip saddr 10.0.0.1 accept",
		"counter",
		"ip saddr 10.0.0.2 accept",
		"ip saddr 10.0.0.3 accept",
	}, e.fake.Kernel().Rules("ip", "t", "c"))

	rules, err := c.Rules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 5)
	assert.Equal(t, head.Handle(), rules[0].Handle())
	assert.Equal(t, last.Handle(), rules[4].Handle())
	assert.Equal(t, "ip saddr 10.0.0.3 accept", rules[4].Statement())

	foreign, err := other.AppendRule(ctx, "accept")
	require.NoError(t, err)
	assert.ErrorIs(t, c.NewRule("drop").Insert(ctx, foreign), nft.ErrUsage)
	assert.ErrorIs(t, c.NewRule("drop").Append(ctx, c.NewRule("accept")), nft.ErrUsage)
	self := c.NewRule("drop")
	assert.ErrorIs(t, self.Insert(ctx, self), nft.ErrUsage)
}

func TestRule_Replace(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP6, none)
	require.NoError(t, err)
	c, err := tbl.Chain(ctx, "c", none)
	require.NoError(t, err)

	r, err := c.AppendRule(ctx, "tcp dport 22 accept")
	require.NoError(t, err)
	handle := r.Handle()

	require.NoError(t, r.Replace(ctx, "tcp dport 2222 accept"))
	assert.Equal(t, handle, r.Handle())
	assert.Equal(t, "tcp dport 2222 accept", r.Statement())
	assert.Equal(t, []string{"tcp dport 2222 accept"}, e.fake.Kernel().Rules("ip6", "t", "c"))

	err = r.Replace(ctx, "jump nowhere")
	assert.ErrorIs(t, err, nft.ErrNotFound)
	assert.Equal(t, "tcp dport 2222 accept", r.Statement())
}

func TestCounter_FlushBeforeLoad(t *testing.T) {
	e := setup(t, 2*time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	c, err := tbl.NewCounter("hits")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Flush(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("flush returned before load: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, c.Load(ctx, none))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("flush did not finish after load")
	}
}

func TestCounter_NeverLoadedTimesOut(t *testing.T) {
	e := setup(t, 50*time.Millisecond)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	c, err := tbl.NewCounter("hits")
	require.NoError(t, err)

	err = c.Flush(ctx)
	assert.ErrorIs(t, err, nft.ErrTimeout)
	assert.NotErrorIs(t, err, nft.ErrUsage)
	assert.Contains(t, err.Error(), "not loaded")
}

func TestChildWaitsForTableLoad(t *testing.T) {
	e := setup(t, 2*time.Second)
	ctx := context.Background()

	tbl, err := e.rs.NewTable("t", ruleset.FamilyINet)
	require.NoError(t, err)
	c, err := tbl.NewChain("c")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Load(ctx, none) }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tbl.Load(ctx, none))
	require.NoError(t, <-done)
	assert.True(t, e.fake.Kernel().HasChain("inet", "t", "c"))
}

func TestCounter_GetAndReset(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyINet, none)
	require.NoError(t, err)
	c, err := tbl.Counter(ctx, "hits", none)
	require.NoError(t, err)
	assert.Equal(t, "counter name hits", c.Ref())

	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ruleset.CounterValue{}, v)

	require.True(t, e.fake.Kernel().SetCounter("inet", "t", "hits", 12, 3400))
	v, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ruleset.CounterValue{Packets: 12, Bytes: 3400}, v)

	old, err := c.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), old.Packets)

	v, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, v.Packets)

	require.True(t, e.fake.Kernel().SetCounter("inet", "t", "hits", 5, 500))
	again, err := tbl.Counter(ctx, "hits", nft.LoadOptions{FlushExisting: true})
	require.NoError(t, err)
	v, err = again.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, v.Bytes)

	require.NoError(t, c.Delete(ctx))
	_, err = c.Get(ctx)
	assert.ErrorIs(t, err, nft.ErrUsage)
}

func TestSet_Lifecycle(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	s, err := tbl.Set(ctx, "blocked", ruleset.SetSpec{
		Type:     "ipv4_addr",
		Flags:    []string{"interval"},
		Timeout:  time.Hour,
		Elements: []string{"10.0.0.0/8"},
	}, none)
	require.NoError(t, err)
	assert.Equal(t, "@blocked", s.Ref())

	require.NoError(t, s.AddElements(ctx, "192.168.0.0/16", "172.16.0.0/12"))
	elems, err := s.Elements(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16", "172.16.0.0/12"}, elems)

	require.NoError(t, s.DeleteElements(ctx, "192.168.0.0/16"))
	assert.ErrorIs(t, s.DeleteElements(ctx, "192.168.0.0/16"), nft.ErrNotFound)
	assert.ErrorIs(t, s.AddElements(ctx, "a,b"), nft.ErrUsage)

	c, err := tbl.Chain(ctx, "c", none)
	require.NoError(t, err)
	r, err := c.AppendRule(ctx, "ip saddr "+s.Ref()+" drop")
	require.NoError(t, err)

	err = s.Delete(ctx)
	assert.ErrorIs(t, err, nft.ErrCommandFailed, "nft refuses to delete a referenced set")
	assert.Equal(t, nft.StateInitialized, s.State())

	require.NoError(t, r.Delete(ctx))
	require.NoError(t, s.Delete(ctx))
	assert.Nil(t, e.fake.Kernel().Elements("ip", "t", "blocked"))
	assert.ErrorIs(t, s.Flush(ctx), nft.ErrUsage)
}

func TestSet_FlushExistingRestoresElements(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)
	spec := ruleset.SetSpec{Type: "inet_service", Elements: []string{"22", "80"}}
	s, err := tbl.Set(ctx, "ports", spec, none)
	require.NoError(t, err)
	require.NoError(t, s.AddElements(ctx, "443"))

	_, err = tbl.Set(ctx, "ports", spec, none)
	assert.ErrorIs(t, err, nft.ErrAlreadyExists)

	_, err = tbl.Set(ctx, "ports", spec, nft.LoadOptions{FlushExisting: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"22", "80"}, e.fake.Kernel().Elements("ip", "t", "ports"))

	_, err = tbl.NewSet("bad", ruleset.SetSpec{Type: "string"})
	assert.ErrorIs(t, err, nft.ErrUsage)
}

func TestBaseChain_Load(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	tbl, err := e.rs.Table(ctx, "filter", ruleset.FamilyINet, none)
	require.NoError(t, err)

	spec := ruleset.BaseChainSpec{
		Type:     ruleset.TypeFilter,
		Hook:     ruleset.HookInput,
		Priority: "filter",
		Policy:   ruleset.PolicyDrop,
	}
	b, err := tbl.BaseChain(ctx, "input", spec, none)
	require.NoError(t, err)
	assert.Equal(t, spec, b.Spec())
	assert.Contains(t, e.fake.Commands(),
		"create chain inet filter input { type filter hook input priority filter ; policy drop ; }")

	_, err = b.AppendRule(ctx, "ct state established accept")
	require.NoError(t, err)

	_, err = tbl.BaseChain(ctx, "input", spec, none)
	assert.ErrorIs(t, err, nft.ErrAlreadyExists)

	spec.Policy = ruleset.PolicyAccept
	_, err = tbl.BaseChain(ctx, "input", spec, nft.LoadOptions{FlushExisting: true})
	require.NoError(t, err)
	assert.Empty(t, e.fake.Kernel().Rules("inet", "filter", "input"))

	cmds := e.fake.Commands()
	assert.Equal(t, "create chain inet filter input { type filter hook input priority filter ; policy accept ; }", cmds[len(cmds)-1])
	assert.Contains(t, cmds, "delete chain inet filter input")

	_, err = tbl.NewBaseChain("nat", ruleset.BaseChainSpec{Type: ruleset.TypeNAT, Hook: ruleset.HookPrerouting})
	assert.ErrorIs(t, err, nft.ErrUsage, "nat chains need ip or ip6")
}

func TestBaseChain_NetdevDeviceCheck(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	var checked []string
	rs := ruleset.New(nftExecutor(e), ruleset.Options{
		Logger:  logging.Discard(),
		Metrics: e.metrics,
		CheckDevice: func(name string) error {
			checked = append(checked, name)
			if name == "eth0" {
				return nil
			}
			return assert.AnError
		},
	})

	tbl, err := rs.Table(ctx, "dev", ruleset.FamilyNetdev, none)
	require.NoError(t, err)

	_, err = tbl.NewBaseChain("ingress", ruleset.BaseChainSpec{Type: ruleset.TypeFilter, Hook: ruleset.HookIngress})
	assert.ErrorIs(t, err, nft.ErrUsage, "netdev needs a device")

	_, err = tbl.BaseChain(ctx, "missing", ruleset.BaseChainSpec{
		Type: ruleset.TypeFilter, Hook: ruleset.HookIngress, Device: "eth9",
	}, none)
	assert.ErrorIs(t, err, nft.ErrNotFound)
	assert.False(t, e.fake.Kernel().HasChain("netdev", "dev", "missing"))

	_, err = tbl.BaseChain(ctx, "ingress", ruleset.BaseChainSpec{
		Type: ruleset.TypeFilter, Hook: ruleset.HookIngress, Device: "eth0", Priority: "-500",
	}, none)
	require.NoError(t, err)
	assert.Equal(t, []string{"eth9", "eth0"}, checked)
	assert.Contains(t, e.fake.Commands(),
		"create chain netdev dev ingress { type filter hook ingress device eth0 priority -500 ; policy accept ; }")
}

// nftExecutor shares the env's executor with a second ruleset.
func nftExecutor(e env) nft.Executor {
	return execFunc(func(ctx context.Context, cmd nft.Command) (string, error) {
		return e.rs.Exec(ctx, cmd.Tokens()...)
	})
}

type execFunc func(ctx context.Context, cmd nft.Command) (string, error)

func (f execFunc) Execute(ctx context.Context, cmd nft.Command) (string, error) {
	return f(ctx, cmd)
}

func TestConcurrentAppends(t *testing.T) {
	e := setup(t, 2*time.Second)
	ctx := context.Background()

	tbl, err := e.rs.NewTable("t", ruleset.FamilyIP)
	require.NoError(t, err)
	c, err := tbl.NewChain("c")
	require.NoError(t, err)

	const n = 12
	handles := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.AppendRule(ctx, "meta mark "+strings.Repeat("1", i+1)+" accept")
			if assert.NoError(t, err) {
				handles[i] = r.Handle()
			}
		}(i)
	}

	// Callers started before the objects exist wait for them.
	require.NoError(t, tbl.Load(ctx, none))
	require.NoError(t, c.Load(ctx, none))
	wg.Wait()

	seen := map[uint64]bool{}
	for _, h := range handles {
		assert.NotZero(t, h)
		assert.False(t, seen[h], "duplicate handle %d", h)
		seen[h] = true
	}
	assert.Len(t, e.fake.Kernel().Rules("ip", "t", "c"), n)
}

func TestRuleset_TablesListFlush(t *testing.T) {
	e := setup(t, time.Second)
	ctx := context.Background()

	_, err := e.rs.Table(ctx, "a", ruleset.FamilyINet, none)
	require.NoError(t, err)
	_, err = e.rs.Table(ctx, "b", ruleset.FamilyBridge, none)
	require.NoError(t, err)

	tables, err := e.rs.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ruleset.TableRef{
		{Family: ruleset.FamilyINet, Name: "a"},
		{Family: ruleset.FamilyBridge, Name: "b"},
	}, tables)
	assert.Equal(t, "inet a", tables[0].String())

	listing, err := e.rs.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, listing, "table bridge b")

	require.NoError(t, e.rs.Flush(ctx))
	tables, err = e.rs.Tables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestNames(t *testing.T) {
	e := setup(t, time.Second)

	_, err := e.rs.NewTable("has space", ruleset.FamilyIP)
	assert.ErrorIs(t, err, nft.ErrUsage)
	_, err = e.rs.NewTable("t", "ipx")
	assert.ErrorIs(t, err, nft.ErrUsage)

	tbl, err := e.rs.NewTable("t", "")
	require.NoError(t, err)
	assert.Equal(t, ruleset.FamilyIP, tbl.Family())

	_, err = tbl.NewChain("a;b")
	assert.ErrorIs(t, err, nft.ErrUsage)
	_, err = tbl.NewCounter("")
	assert.ErrorIs(t, err, nft.ErrUsage)
}

func TestOpenWithLauncher_RestartsHungSession(t *testing.T) {
	fake := nfttest.New()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Session.Timeout = "200ms"
	cfg.Session.Retry = &config.RetryConfig{MaxAttempts: 2, InitialDelay: "1ms", MaxDelay: "1ms"}

	rs, err := ruleset.OpenWithLauncher(ctx, fake, cfg, ruleset.Options{
		Logger:  logging.Discard(),
		Metrics: metrics.NewIsolated(),
	})
	require.NoError(t, err)
	defer rs.Close()
	require.NotNil(t, rs.Session())

	tbl, err := rs.Table(ctx, "t", ruleset.FamilyIP, none)
	require.NoError(t, err)

	fake.StallOnce("list table")
	_, err = tbl.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Launches())

	require.NoError(t, rs.Close())
	assert.False(t, rs.Session().Running())
}

func TestOpenWithLauncher_NoRetry(t *testing.T) {
	fake := nfttest.New()
	ctx := context.Background()

	cfg := config.Default()
	cfg.Session.Timeout = "100ms"
	cfg.Session.Retry.MaxAttempts = 1

	rs, err := ruleset.OpenWithLauncher(ctx, fake, cfg, ruleset.Options{
		Logger:  logging.Discard(),
		Metrics: metrics.NewIsolated(),
	})
	require.NoError(t, err)
	defer rs.Close()

	fake.StallOnce("list ruleset")
	_, err = rs.List(ctx)
	assert.ErrorIs(t, err, nft.ErrTimeout)
	assert.Equal(t, 1, fake.Launches())

	cfg.Session.Timeout = "soon"
	_, err = ruleset.OpenWithLauncher(ctx, fake, cfg, ruleset.Options{Logger: logging.Discard()})
	assert.ErrorContains(t, err, "session timeout")
}

func TestOpenWithLauncher_StartFailure(t *testing.T) {
	fake := nfttest.New()
	fake.FailLaunches(1)

	_, err := ruleset.OpenWithLauncher(context.Background(), fake, nil, ruleset.Options{
		Logger:  logging.Discard(),
		Metrics: metrics.NewIsolated(),
	})
	assert.ErrorContains(t, err, "executable file not found")
}
