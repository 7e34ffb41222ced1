package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/nft"
	"grimm.is/nftctl/internal/ruleset"
)

// DemoOptions names the scratch objects RunDemo creates.
type DemoOptions struct {
	Table  string
	Family string
	// Keep leaves the table in place instead of deleting it at the end.
	Keep bool
}

// RunDemo walks through the resource lifecycle on a scratch table: two
// chains, a jump between them, deleting the jump target and then the table.
func RunDemo(ctx context.Context, env *Env, opts DemoOptions) error {
	family, err := ruleset.ParseFamily(opts.Family)
	if err != nil {
		return err
	}

	rs, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()

	// FlushExisting so a table left behind by an earlier run is reused.
	load := nft.LoadOptions{FlushExisting: true}

	table, err := rs.Table(ctx, opts.Table, family, load)
	if err != nil {
		return err
	}
	chain1, err := table.Chain(ctx, "test_chain1", load)
	if err != nil {
		return err
	}
	chain2, err := table.Chain(ctx, "test_chain2", load)
	if err != nil {
		return err
	}
	jump, err := chain1.InsertRule(ctx, "jump "+chain2.Name())
	if err != nil {
		return err
	}
	env.printf("Inserted %q with handle %d\n\n", jump.Statement(), jump.Handle())

	if err := printTable(ctx, env, table); err != nil {
		return err
	}

	// Deleting the target removes the jump in test_chain1 first.
	if err := chain2.Delete(ctx); err != nil {
		return fmt.Errorf("delete %s: %w", chain2.Name(), err)
	}
	env.printf("\nDeleted %s\n\n", chain2.Name())

	if err := printTable(ctx, env, table); err != nil {
		return err
	}

	if opts.Keep {
		return nil
	}
	if err := table.Delete(ctx); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}
	env.printf("\nDeleted table %s\n", table)
	return nil
}

func printTable(ctx context.Context, env *Env, t *ruleset.Table) error {
	out, err := t.List(ctx)
	if err != nil {
		return err
	}
	env.printf("%s\n", out)
	return nil
}

var demoOpts DemoOptions

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a short lifecycle walkthrough on a scratch table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		return RunDemo(cmd.Context(), env, demoOpts)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoOpts.Table, "table", "test_table", "Scratch table name")
	demoCmd.Flags().StringVarP(&demoOpts.Family, "family", "f", "ip", "Scratch table family")
	demoCmd.Flags().BoolVar(&demoOpts.Keep, "keep", false, "Do not delete the table at the end")
}
