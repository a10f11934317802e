package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var scriptID int64
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check installed scripts for updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			checker, err := buildChecker(store)
			if err != nil {
				return err
			}

			var updated int
			if scriptID > 0 {
				updated, err = checker.CheckUpdate(cmd.Context(), scriptID)
			} else {
				updated, err = checker.CheckUpdate(cmd.Context())
			}
			if err != nil {
				return err
			}
			log.Info().Int("updated", updated).Msg("update check finished")
			fmt.Fprintf(cmd.OutOrStdout(), "%d script(s) updated\n", updated)
			return nil
		},
	}
	cmd.Flags().Int64Var(&scriptID, "id", 0, "check a single script by id, bypassing the enabled-only filter")
	return cmd
}
