package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/timeline2video/internal/effects"
)

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List the available transition effects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range effects.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(effectsCmd)
}
