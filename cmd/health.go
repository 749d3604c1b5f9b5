package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the completion provider and persistence service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		provider, err := newProvider(ctx, cfg)
		if err != nil {
			return err
		}

		providerOK := provider.CheckHealth(ctx)
		historyOK := newHistory(cfg).CheckHealth(ctx)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-20s %s\n", "completion provider", status(providerOK))
		fmt.Fprintf(out, "%-20s %s\n", "persistence service", status(historyOK))

		if !providerOK || !historyOK {
			return errors.New("health check failed")
		}
		return nil
	},
}

func status(ok bool) string {
	if ok {
		return okStyle.Render("ok")
	}
	return errorStyle.Render("unreachable")
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
