package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/okian/satobs/internal/loadgen"
	"github.com/okian/satobs/pkg/logger"
	"github.com/spf13/cobra"
)

func newLoadgenCmd() *cobra.Command {
	cfg := loadgen.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "loadgen",
		Short: "Submit synthetic batches to a running server and verify the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			stats, err := loadgen.Run(cmd.Context(), cfg)
			fmt.Fprintf(cmd.OutOrStdout(), "%d batches (%d refused, %d failed), %s records: %s created, %s duplicates, %s rejected in %s\n",
				stats.BatchesSubmitted, stats.BatchesRefused, stats.BatchesFailed,
				humanize.Comma(int64(stats.Records)),
				humanize.Comma(int64(stats.Created)),
				humanize.Comma(int64(stats.Duplicates)),
				humanize.Comma(int64(stats.Rejected)),
				stats.Duration.Round(time.Millisecond),
			)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", cfg.BaseURL, "server base URL")
	f.IntVarP(&cfg.Batches, "batches", "n", cfg.Batches, "number of batches")
	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "records per batch")
	f.IntVarP(&cfg.Workers, "workers", "w", cfg.Workers, "concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "HTTP request timeout")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "status poll interval")
	f.Float64Var(&cfg.DuplicateRate, "duplicates", cfg.DuplicateRate, "fraction of repeated records")
	f.Float64Var(&cfg.InvalidRate, "invalid", cfg.InvalidRate, "fraction of invalid records")
	f.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	return cmd
}
