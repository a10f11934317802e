package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	updateagent "github.com/scriptward/UpdateAgent"
	"github.com/scriptward/UpdateAgent/internal/meta"
)

func newAddCmd() *cobra.Command {
	var disabled bool
	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Install a userscript from a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			code, err := newTransport().FetchIfNewer(cmd.Context(), url, updateagent.FetchOptions{NoCache: true})
			if err != nil {
				return errors.Wrap(err, "fetch script")
			}
			block, err := meta.Parse(code)
			if err != nil {
				return err
			}
			if block.Name == "" {
				return errors.New("script metadata is missing @name")
			}

			downloadURL := block.DownloadURL
			if downloadURL == "" {
				downloadURL = url
			}
			id, err := store.InsertScript(cmd.Context(), &updateagent.Script{
				Meta: updateagent.ScriptMeta{
					Name:        block.Name,
					Version:     block.Version,
					DownloadURL: downloadURL,
					UpdateURL:   block.UpdateURL,
				},
				Config: updateagent.ScriptConfig{Enabled: !disabled},
				Code:   code,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "installed %q (id %d, version %s)\n", block.Name, id, block.Version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&disabled, "disabled", false, "install the script in disabled state")
	return cmd
}
