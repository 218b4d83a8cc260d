package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/okian/satobs/internal/domain/batch"
	"github.com/okian/satobs/pkg/logger"
	"golang.org/x/sync/errgroup"
)

type job struct {
	index   int
	invalid int
}

// Run submits cfg.Batches batches, waits for each to finish and checks that
// Created+Duplicates+Rejected equals the batch size and that at least the
// deliberately invalid records were rejected.
func Run(ctx context.Context, cfg Config) (Stats, error) {
	log := logger.Get().Named("loadgen")
	start := time.Now()
	c := &client{base: strings.TrimSuffix(cfg.BaseURL, "/"), http: &http.Client{Timeout: cfg.Timeout}}

	if err := c.health(ctx); err != nil {
		return Stats{}, fmt.Errorf("service health check failed: %w", err)
	}
	log.Info(ctx, "starting load run",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("batches", cfg.Batches),
		logger.Int("batch_size", cfg.BatchSize),
		logger.Int("workers", cfg.Workers),
	)

	gen := newGenerator(cfg)
	var (
		mu    sync.Mutex
		stats Stats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range cfg.Batches {
		recs, invalid := gen.batch()
		j := job{index: i, invalid: invalid}
		g.Go(func() error {
			id, err := c.submit(gctx, recs)
			if errors.Is(err, ErrRefused) {
				mu.Lock()
				stats.BatchesRefused++
				mu.Unlock()
				log.Warn(gctx, "batch refused", logger.Int("index", j.index), logger.Error(err))
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			stats.BatchesSubmitted++
			mu.Unlock()

			res, err := waitResult(gctx, c, id, cfg.PollInterval)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			stats.record(res, len(recs), j.invalid)
			return nil
		})
	}
	err := g.Wait()
	stats.Duration = time.Since(start)

	log.Info(ctx, "load run finished",
		logger.Int("submitted", stats.BatchesSubmitted),
		logger.Int("refused", stats.BatchesRefused),
		logger.Int("failed", stats.BatchesFailed),
		logger.String("records", humanize.Comma(int64(stats.Records))),
		logger.String("created", humanize.Comma(int64(stats.Created))),
		logger.String("duplicates", humanize.Comma(int64(stats.Duplicates))),
		logger.String("rejected", humanize.Comma(int64(stats.Rejected))),
		logger.Int("mismatches", stats.Mismatches),
		logger.Duration("duration", stats.Duration),
	)
	if err != nil {
		return stats, err
	}
	if stats.Mismatches > 0 {
		return stats, fmt.Errorf("%d batches did not account for every record", stats.Mismatches)
	}
	return stats, nil
}

func (s *Stats) record(res *batch.Result, size, invalid int) {
	s.BatchesFinished++
	if res.Status == batch.StatusFailed || res.Summary == nil {
		s.BatchesFailed++
		return
	}
	sum := res.Summary
	s.Records += sum.Total
	s.Created += sum.Created
	s.Duplicates += sum.Duplicates
	s.Rejected += sum.Rejected
	if sum.Total != size || sum.Created+sum.Duplicates+sum.Rejected != size || sum.Rejected < invalid {
		s.Mismatches++
	}
}

func waitResult(ctx context.Context, c *client, id string, every time.Duration) (*batch.Result, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		snap, err := c.status(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("poll %s: %w", id, err)
		}
		if snap.Result != nil {
			return snap.Result, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
