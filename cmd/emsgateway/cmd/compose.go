package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AdityaSrivastav5/ems-plus-plus/internal/gateway"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Load and compose the subgraph schemas once, then print the SDL",
	RunE: func(cmd *cobra.Command, args []string) error {
		composed, err := gateway.Compose(cmd.Context(), cfg, gateway.Dependencies{Logger: logger})
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), composed.SDL)
		return err
	},
}
