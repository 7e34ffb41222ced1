package ruleset

import (
	"context"
	"errors"
	"fmt"
	"math"

	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/nft"
)

// BaseChainSpecFrom converts a chain block. It does not validate.
func BaseChainSpecFrom(cc config.ChainConfig) BaseChainSpec {
	return BaseChainSpec{
		Type:     ChainType(cc.Type),
		Hook:     Hook(cc.Hook),
		Device:   cc.Device,
		Priority: Priority(cc.Priority),
		Policy:   Policy(cc.Policy),
	}
}

// SetSpecFrom converts a set block.
func SetSpecFrom(sc config.SetConfig) (SetSpec, error) {
	timeout, err := config.ParseDuration(sc.Timeout, 0)
	if err != nil {
		return SetSpec{}, err
	}
	gc, err := config.ParseDuration(sc.GCInterval, 0)
	if err != nil {
		return SetSpec{}, err
	}
	if sc.Size < 0 {
		return SetSpec{}, fmt.Errorf("size must not be negative")
	}
	if int64(sc.Size) > math.MaxUint32 {
		return SetSpec{}, fmt.Errorf("size %d exceeds %d", sc.Size, uint32(math.MaxUint32))
	}
	return SetSpec{
		Type:       sc.Type,
		Flags:      sc.Flags,
		Timeout:    timeout,
		GCInterval: gc,
		Size:       uint32(sc.Size),
		Policy:     sc.Policy,
		AutoMerge:  sc.AutoMerge,
		Elements:   sc.Elements,
	}, nil
}

// ValidatePlan checks the nft vocabulary of a plan: families, chain types,
// hooks, priorities, policies, set types and object names.
func ValidatePlan(tables []config.TableConfig) error {
	var errs config.ValidationErrors
	add := func(field string, err error) {
		errs = append(errs, config.ValidationError{Field: field, Message: err.Error()})
	}

	for _, tc := range tables {
		tfield := fmt.Sprintf("table[%s]", tc.Name)
		if err := checkName("table", tc.Name); err != nil {
			add(tfield, err)
		}
		family, err := ParseFamily(tc.Family)
		if err != nil {
			add(tfield+".family", err)
			continue
		}

		for _, sc := range tc.Sets {
			field := fmt.Sprintf("%s.set[%s]", tfield, sc.Name)
			if err := checkName("set", sc.Name); err != nil {
				add(field, err)
			}
			spec, err := SetSpecFrom(sc)
			if err == nil {
				err = spec.Validate()
			}
			if err != nil {
				add(field, err)
			}
		}
		for _, cc := range tc.Counters {
			if err := checkName("counter", cc.Name); err != nil {
				add(fmt.Sprintf("%s.counter[%s]", tfield, cc.Name), err)
			}
		}
		for _, cc := range tc.Chains {
			field := fmt.Sprintf("%s.chain[%s]", tfield, cc.Name)
			if err := checkName("chain", cc.Name); err != nil {
				add(field, err)
			}
			if cc.IsBase() {
				if err := BaseChainSpecFrom(cc).Validate(family); err != nil {
					add(field, err)
				}
			}
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Apply loads every table of a plan: the table, then its sets and counters,
// then all chains, then rules in order. Rules go in last so jumps between
// chains of the plan resolve. Children inherit the table's load options.
//
// With Reuse, rules are only added to chains that are empty, so applying
// the same plan twice does not duplicate them.
func Apply(ctx context.Context, rs *Ruleset, tables []config.TableConfig) ([]*Table, error) {
	if err := ValidatePlan(tables); err != nil {
		return nil, err
	}

	out := make([]*Table, 0, len(tables))
	for _, tc := range tables {
		t, err := applyTable(ctx, rs, tc)
		if err != nil {
			return out, fmt.Errorf("table %s: %w", tc.Name, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func applyTable(ctx context.Context, rs *Ruleset, tc config.TableConfig) (*Table, error) {
	opts := nft.LoadOptions{FlushExisting: tc.FlushExisting, Reuse: tc.Reuse}

	family, _ := ParseFamily(tc.Family)
	t, err := rs.Table(ctx, tc.Name, family, opts)
	if err != nil {
		return nil, err
	}

	for _, sc := range tc.Sets {
		spec, _ := SetSpecFrom(sc)
		if _, err := t.Set(ctx, sc.Name, spec, opts); err != nil {
			return t, fmt.Errorf("set %s: %w", sc.Name, err)
		}
	}
	for _, cc := range tc.Counters {
		if _, err := t.Counter(ctx, cc.Name, opts); err != nil {
			return t, fmt.Errorf("counter %s: %w", cc.Name, err)
		}
	}

	chains := make([]*Chain, len(tc.Chains))
	for i, cc := range tc.Chains {
		if cc.IsBase() {
			b, err := t.BaseChain(ctx, cc.Name, BaseChainSpecFrom(cc), opts)
			if err != nil {
				return t, fmt.Errorf("chain %s: %w", cc.Name, err)
			}
			chains[i] = b.Chain
			continue
		}
		c, err := t.Chain(ctx, cc.Name, opts)
		if err != nil {
			return t, fmt.Errorf("chain %s: %w", cc.Name, err)
		}
		chains[i] = c
	}

	for i, cc := range tc.Chains {
		c := chains[i]
		if opts.Reuse && len(cc.Rules) > 0 {
			existing, err := c.Rules(ctx)
			if err != nil {
				return t, fmt.Errorf("chain %s: %w", cc.Name, err)
			}
			if len(existing) > 0 {
				rs.log.Debug("keeping rules of reused chain", "table", t.String(), "chain", cc.Name, "rules", len(existing))
				continue
			}
		}
		for n, stmt := range cc.Rules {
			if _, err := c.AppendRule(ctx, stmt); err != nil {
				return t, fmt.Errorf("chain %s rule %d: %w", cc.Name, n, err)
			}
		}
	}

	rs.log.Info("applied table",
		"table", t.String(),
		"sets", len(tc.Sets),
		"counters", len(tc.Counters),
		"chains", len(tc.Chains),
	)
	return t, nil
}

// IsPlanError reports whether err came from ValidatePlan.
func IsPlanError(err error) bool {
	var verrs config.ValidationErrors
	return errors.As(err, &verrs)
}
