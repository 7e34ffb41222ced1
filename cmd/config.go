package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/config"
	"grimm.is/nftctl/internal/ruleset"
)

// RunConfigInit writes a default config to path, or prints it when path is
// empty. An existing file is only replaced with force.
func RunConfigInit(env *Env, path string, force bool) error {
	cfg := config.Default()
	if path == "" {
		env.printf("%s", config.Render(cfg))
		return nil
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := config.SaveFile(cfg, path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	env.printf("Wrote %s\n", path)
	return nil
}

// RunCheck validates a config file, including the nft vocabulary of its
// plan, without starting nft.
func RunCheck(env *Env, path string) error {
	cfg, err := loadConfig(path, true)
	if err != nil {
		return err
	}
	if err := ruleset.ValidatePlan(cfg.Tables); err != nil {
		return fmt.Errorf("plan invalid: %w", err)
	}

	env.printf("Configuration valid!\n")
	env.printf("Schema Version: %s\n", cfg.SchemaVersion)
	env.printf("Tables: %d\n", len(cfg.Tables))
	for _, t := range cfg.Tables {
		env.printf("  %s %s: %d chains, %d sets, %d counters\n",
			t.Family, t.Name, len(t.Chains), len(t.Sets), len(t.Counters))
	}
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and check configuration files",
}

var configInitForce bool

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration",
	Long: `Write a default configuration to path, or to stdout without one.
The format follows the extension (.hcl, .json, .yaml).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := &Env{Out: cmd.OutOrStdout()}
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return RunConfigInit(env, path, configInitForce)
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Validate a configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env := &Env{Out: cmd.OutOrStdout()}
		path := configFile
		if len(args) == 1 {
			path = args[0]
		}
		return RunCheck(env, path)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")
}
