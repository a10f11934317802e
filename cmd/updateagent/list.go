package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	updateagent "github.com/scriptward/UpdateAgent"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			scripts, err := store.AllScripts(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tENABLED\tSTATUS")
			for _, script := range scripts {
				status := script.Update.Message
				if script.Update.Error != "" {
					status = script.Update.Error
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%v\t%s\n",
					script.ID, script.Meta.Name, script.Meta.Version,
					script.Config.Enabled, status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if last := store.Int64(updateagent.OptLastUpdate); last > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "last checked: %s\n",
					time.UnixMilli(last).Format(time.RFC3339))
			}
			return nil
		},
	}
}
