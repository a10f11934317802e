package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	updateagent "github.com/scriptward/UpdateAgent"
	"github.com/scriptward/UpdateAgent/internal/config"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically check all scripts for updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval <= 0 {
				interval = config.Duration("UPDATEAGENT_CHECK_INTERVAL", 24*time.Hour)
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			checker, err := buildChecker(store)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			group := updateagent.NewSafeGroup(ctx)
			group.GoSafe("update watch loop", func(ctx context.Context) error {
				return watchLoop(ctx, checker, interval)
			})
			return group.Wait()
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "time between bulk checks, overrides UPDATEAGENT_CHECK_INTERVAL")
	return cmd
}

func watchLoop(ctx context.Context, checker *updateagent.Checker, interval time.Duration) error {
	log.Info().Dur("interval", interval).Msg("start update watch loop")

	// Fast-start: run one check immediately instead of waiting for the first tick.
	if updated, err := checker.CheckUpdate(ctx); err != nil {
		log.Error().Err(err).Msg("initial update check failed")
	} else {
		log.Info().Int("updated", updated).Msg("update check finished")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if updated, err := checker.CheckUpdate(ctx); err != nil {
				log.Error().Err(err).Msg("update check failed")
			} else {
				log.Info().Int("updated", updated).Msg("update check finished")
			}
		}
	}
}
