package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	service "github.com/okian/satobs/internal/app"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/internal/domain/model"
	"github.com/okian/satobs/pkg/logger"
	"github.com/spf13/cobra"
)

// ErrBatchFailed is returned when a one-shot batch ends FAILED.
var ErrBatchFailed = errors.New("batch failed")

// ingestFile accepts either a bare array of records or a submission object.
type ingestFile struct {
	Records          []model.Record `json:"records"`
	NotifyEmail      string         `json:"notify_email"`
	SendConfirmation bool           `json:"send_confirmation"`
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		notify  string
		confirm bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file.json>",
		Short: "Process one batch synchronously and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			sub, err := readSubmission(args[0])
			if err != nil {
				return err
			}
			if notify != "" {
				sub.NotifyAddress = notify
			}
			if cmd.Flags().Changed("confirm") {
				sub.SendConfirmation = confirm
			}

			svc := service.New(serviceOptions(cfg)...)
			return runIngest(cmd.Context(), svc, sub, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&notify, "notify", "", "confirmation address (defaults to the file's notify_email)")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "send a confirmation when observations are stored")
	return cmd
}

func runIngest(ctx context.Context, svc *service.Service, sub service.Submission, out, summary io.Writer) error {
	if err := svc.Open(ctx); err != nil {
		return fmt.Errorf("failed to open service: %w", err)
	}
	defer func() { _ = svc.Stop(context.WithoutCancel(ctx)) }()

	res, err := svc.Run(ctx, sub)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	fmt.Fprintln(summary, describe(res))

	if res.Status == batch.StatusFailed {
		return fmt.Errorf("%w: %s", ErrBatchFailed, res.Error)
	}
	return nil
}

func readSubmission(path string) (service.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return service.Submission{}, fmt.Errorf("read %s: %w", path, err)
	}
	var f ingestFile
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &f.Records)
	} else {
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return service.Submission{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return service.Submission{
		Records:          f.Records,
		NotifyAddress:    f.NotifyEmail,
		SendConfirmation: f.SendConfirmation,
	}, nil
}

func describe(res batch.Result) string {
	elapsed := res.FinishedAt.Sub(res.StartedAt)
	if res.Summary == nil {
		return fmt.Sprintf("%s: %s (%s)", res.Status, res.Error, elapsed)
	}
	s := res.Summary
	return fmt.Sprintf("%s: %s observations, %s created, %s duplicates, %s rejected in %s",
		res.Status,
		humanize.Comma(int64(s.Total)),
		humanize.Comma(int64(s.Created)),
		humanize.Comma(int64(s.Duplicates)),
		humanize.Comma(int64(s.Rejected)),
		elapsed,
	)
}
