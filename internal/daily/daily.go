// Package daily runs the availability report for every hut of a roster.
package daily

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alex-user-go/hutavail/internal/availability"
	"github.com/alex-user-go/hutavail/internal/availability/types"
	"github.com/alex-user-go/hutavail/internal/report"
	"github.com/alex-user-go/hutavail/internal/roster"
)

// Fetcher returns the availability of one hut.
type Fetcher interface {
	Availability(ctx context.Context, slug string, start, end types.Date) (availability.HutAvailability, error)
}

// Summary describes one finished run.
type Summary struct {
	RunID    string
	Rows     []report.Row
	Failed   map[string]error
	Duration time.Duration
}

// Runner computes availability for many huts, several at a time.
type Runner struct {
	fetcher     Fetcher
	concurrency int
	today       func() types.Date
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithToday replaces the source of the fetch date.
func WithToday(today func() types.Date) Option {
	return func(r *Runner) {
		r.today = today
	}
}

// NewRunner creates a new Runner processing up to concurrency huts in parallel.
func NewRunner(fetcher Fetcher, concurrency int, logger *slog.Logger, opts ...Option) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	r := &Runner{
		fetcher:     fetcher,
		concurrency: concurrency,
		today:       types.Today,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches [start, end] for every hut and returns the rows ordered by hut, then booking date.
// A hut that fails is logged and listed in Summary.Failed; the others still report.
// Run returns an error when ctx ends or when every hut failed.
func (r *Runner) Run(ctx context.Context, huts []roster.Hut, start, end types.Date) (Summary, error) {
	began := time.Now()
	summary := Summary{
		RunID:  uuid.New().String(),
		Failed: make(map[string]error),
	}
	logger := r.logger.With("run_id", summary.RunID)
	fetchDate := r.today()

	perHut := make([][]report.Row, len(huts))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, hut := range huts {
		i, hut := i, hut
		g.Go(func() error {
			got, err := r.fetcher.Availability(gctx, hut.Slug, start, end)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Error("hut failed", "hut", hut.Slug, "error", err)
				mu.Lock()
				summary.Failed[hut.Slug] = err
				mu.Unlock()
				return nil
			}

			perHut[i] = rows(summary.RunID, hut.Name, fetchDate, got.Dates)
			logger.Info("hut done", "hut", hut.Slug, "dates", len(got.Dates))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("daily run: %w", err)
	}

	for _, hutRows := range perHut {
		summary.Rows = append(summary.Rows, hutRows...)
	}
	summary.Duration = time.Since(began)

	logger.Info("daily run finished",
		"huts", len(huts),
		"failed", len(summary.Failed),
		"rows", len(summary.Rows),
		"duration_ms", summary.Duration.Milliseconds(),
	)

	if len(huts) > 0 && len(summary.Failed) == len(huts) {
		return summary, errors.New("daily run: every hut failed")
	}
	return summary, nil
}

func rows(runID, hut string, fetchDate types.Date, dates map[types.Date]types.Result) []report.Row {
	out := make([]report.Row, 0, len(dates))
	for d, result := range dates {
		out = append(out, report.Row{
			RunID:        runID,
			Hut:          hut,
			FetchDate:    fetchDate,
			BookingDate:  d,
			NumAvailable: result.NumAvailable,
			Rooms:        result.Rooms,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookingDate.Before(out[j].BookingDate) })
	return out
}
