package cmd

import (
	"github.com/spf13/cobra"

	"grimm.is/nftctl/internal/brand"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of " + brand.BinaryName,
	Run: func(cmd *cobra.Command, args []string) {
		Printer.Fprintf(cmd.OutOrStdout(), "%s version %s\n", brand.Name, brand.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
