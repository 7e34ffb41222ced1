package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/ruleset"
)

// ListOptions selects what RunList prints.
type ListOptions struct {
	// Table limits the listing to one table. Family defaults to ip.
	Table  string
	Family string
	// Tables prints only "family name" lines.
	Tables bool
	// Strip removes handles and counter values.
	Strip bool
}

// RunList prints the live ruleset or part of it.
func RunList(ctx context.Context, env *Env, opts ListOptions) error {
	rs, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()

	if opts.Tables {
		tables, err := rs.Tables(ctx)
		if err != nil {
			return err
		}
		for _, t := range tables {
			env.printf("%s\n", t)
		}
		return nil
	}

	var out string
	if opts.Table != "" {
		family, err := ruleset.ParseFamily(opts.Family)
		if err != nil {
			return err
		}
		// A raw list; loading a Table handle would create a missing table.
		out, err = rs.Exec(ctx, "list", "table", string(family), opts.Table)
		if err != nil {
			return fmt.Errorf("table %s: %w", opts.Table, err)
		}
	} else if out, err = rs.List(ctx); err != nil {
		return err
	}

	if opts.Strip {
		out = ruleset.StripNoise(out)
	}
	if out != "" {
		env.printf("%s\n", out)
	}
	return nil
}

var listOpts ListOptions

var listCmd = &cobra.Command{
	Use:   "list [table]",
	Short: "Print the live ruleset",
	Long: `Print the live ruleset as nft shows it, with rule handles.

With a table name only that table is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		opts := listOpts
		if len(args) == 1 {
			opts.Table = args[0]
		}
		return RunList(cmd.Context(), env, opts)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVarP(&listOpts.Family, "family", "f", "", "Table family (ip, ip6, inet, arp, bridge, netdev)")
	listCmd.Flags().BoolVar(&listOpts.Tables, "tables", false, "Only list table names")
	listCmd.Flags().BoolVar(&listOpts.Strip, "strip", false, "Drop handles and counter values")
}
