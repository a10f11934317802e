package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scriptward/UpdateAgent/internal/config"
	"github.com/scriptward/UpdateAgent/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "updateagent",
	Short: "Update checker for installed userscripts",
	Long:  `updateagent keeps a local collection of userscripts current: it queries each script's update descriptor with per-host bounded concurrency, downloads newer versions and reports a consolidated result.`,
}

var rootDBPath string

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	level := zerolog.InfoLevel
	if config.Bool("UPDATEAGENT_DEBUG", false) {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	rootCmd.PersistentFlags().StringVar(&rootDBPath, "db", "", "script database path, overrides UPDATEAGENT_DB_PATH")
	rootCmd.AddCommand(
		newCheckCmd(),
		newAddCmd(),
		newListCmd(),
		newWatchCmd(),
		newOptionCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("updateagent command failed")
	}
}
