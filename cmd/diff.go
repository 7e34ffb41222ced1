package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/ruleset"
)

// errDiffers is returned when the live ruleset does not match.
var errDiffers = errors.New("ruleset differs")

// RunDiff compares a saved ruleset listing with the live one. Handles and
// counter values are ignored.
func RunDiff(ctx context.Context, env *Env, savedFile string) error {
	saved, err := os.ReadFile(savedFile)
	if err != nil {
		return fmt.Errorf("failed to read saved ruleset: %w", err)
	}

	rs, err := env.Open(ctx)
	if err != nil {
		return err
	}
	defer rs.Close()

	running, err := rs.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running ruleset: %w", err)
	}

	d := ruleset.Diff(string(saved), running, savedFile, "running")
	if d == "" {
		env.printf("No changes detected.\n")
		return nil
	}
	env.printf("Running ruleset differs from %s:\n", savedFile)
	env.printf("%s", d)
	return errDiffers
}

var diffCmd = &cobra.Command{
	Use:   "diff <saved-ruleset>",
	Short: "Compare the live ruleset with a saved listing",
	Long: `Compare the live ruleset with a file saved from "nft list ruleset" or
"nftctl list". Exits with status 2 when they differ.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := newEnv(cmd)
		if err != nil {
			return err
		}
		return RunDiff(cmd.Context(), env, args[0])
	},
}

func init() {
	rootCmd.AddCommand(diffCmd)
}
