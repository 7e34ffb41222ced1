package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/ruleset"
)

// ApplyOptions control RunApply.
type ApplyOptions struct {
	// PlanFile, when set, supplies the tables instead of the main config.
	PlanFile string
	// DryRun validates and prints the plan without starting nft.
	DryRun bool
	// Verify reads every base chain back over netlink after applying.
	Verify bool
	// Diff prints what the apply changed in the live ruleset.
	Diff bool
}

// RunApply loads the tables of the plan into the kernel.
func RunApply(ctx context.Context, env *Env, opts ApplyOptions) error {
	plan := env.Config.Tables
	if opts.PlanFile != "" {
		cfg, err := loadConfig(opts.PlanFile, true)
		if err != nil {
			return err
		}
		plan = cfg.Tables
	}
	if len(plan) == 0 {
		return fmt.Errorf("nothing to apply: no tables in plan")
	}

	if err := ruleset.ValidatePlan(plan); err != nil {
		return fmt.Errorf("plan invalid: %w", err)
	}

	if opts.DryRun {
		env.printf("[DRY RUN] Plan is valid; nothing was sent to nft.\n\n")
		env.printf("%s", config.Render(&config.Config{
			SchemaVersion: config.CurrentSchemaVersion,
			Tables:        plan,
		}))
		return nil
	}

	rs, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()

	var before string
	if opts.Diff {
		if before, err = rs.List(ctx); err != nil {
			return fmt.Errorf("failed to list ruleset before apply: %w", err)
		}
	}

	tables, err := ruleset.Apply(ctx, rs, plan)
	if err != nil {
		return err
	}
	for _, t := range tables {
		env.printf("Applied table %s\n", t)
	}

	if opts.Diff {
		after, err := rs.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list ruleset after apply: %w", err)
		}
		if d := ruleset.Diff(before, after, "before", "after"); d != "" {
			env.printf("\n%s", d)
		} else {
			env.printf("No changes.\n")
		}
	}

	if opts.Verify {
		return verifyBaseChains(env, tables, plan)
	}
	return nil
}

// verifyBaseChains checks each base chain of the plan against the kernel's
// own view over netlink.
func verifyBaseChains(env *Env, tables []*ruleset.Table, plan []config.TableConfig) error {
	ns := env.Config.SessionOrDefault().Namespace

	var errs []error
	for i, t := range tables {
		for _, cc := range plan[i].Chains {
			if !cc.IsBase() {
				continue
			}
			b, err := t.NewBaseChain(cc.Name, ruleset.BaseChainSpecFrom(cc))
			if err == nil {
				err = b.Verify(ns)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("table %s chain %s: %w", t, cc.Name, err))
				continue
			}
			env.printf("Verified %s chain %s\n", t, cc.Name)
		}
	}
	return errors.Join(errs...)
}

var applyOpts ApplyOptions

var applyCmd = &cobra.Command{
	Use:   "apply [plan-file]",
	Short: "Create the tables described by a plan",
	Long: `Create the tables, sets, counters, chains and rules described by the
table blocks of the config file, or of the given plan file.

Tables with flush_existing are emptied and refilled when they already exist.
Tables with reuse are left as they are.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		opts := applyOpts
		if len(args) == 1 {
			opts.PlanFile = args[0]
		}
		return RunApply(cmd.Context(), env, opts)
	},
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().BoolVar(&applyOpts.DryRun, "dry-run", false, "Validate and print the plan without applying it")
	applyCmd.Flags().BoolVar(&applyOpts.Verify, "verify", false, "Verify base chains over netlink after applying")
	applyCmd.Flags().BoolVar(&applyOpts.Diff, "diff", false, "Show the ruleset changes made by the apply")
}
