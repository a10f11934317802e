package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	updateagent "github.com/scriptward/UpdateAgent"
)

// boolOptionKeys maps CLI option names to their persisted keys.
var boolOptionKeys = map[string]string{
	"notify-updates":        updateagent.OptNotifyUpdates,
	"notify-updates-global": updateagent.OptNotifyUpdatesGlobal,
	"update-enabled-only":   updateagent.OptUpdateEnabledScriptsOnly,
}

func resolveBoolOption(name string) (string, error) {
	key, ok := boolOptionKeys[name]
	if !ok {
		return "", errors.Errorf("unknown option %q (known: notify-updates, notify-updates-global, update-enabled-only)", name)
	}
	return key, nil
}

func newOptionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "option",
		Short: "Read and write persisted checker options",
	}
	cmd.AddCommand(newOptionSetCmd(), newOptionGetCmd())
	return cmd
}

func newOptionSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <true|false>",
		Short: "Set a checker option",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveBoolOption(args[0])
			if err != nil {
				return err
			}
			value, err := strconv.ParseBool(args[1])
			if err != nil {
				return errors.Errorf("option %s takes true or false, got %q", args[0], args[1])
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetBool(key, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], value)
			return nil
		},
	}
}

func newOptionGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Print a checker option",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := resolveBoolOption(args[0])
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], store.Bool(key))
			return nil
		},
	}
}
