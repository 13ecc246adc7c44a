package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pcervantes/patrimonio-backend/internal/domain"
	"github.com/pcervantes/patrimonio-backend/internal/observability"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/pricing"
	"github.com/pcervantes/patrimonio-backend/internal/usecase/snapshot"
)

// SkipReasonConcurrent is reported when a run is skipped because another run
// of the same job is active. It is a successful no-op, not an error.
const SkipReasonConcurrent = "concurrent_execution"

// RunResult is the outcome of one job execution
type RunResult struct {
	Skipped   bool           `json:"skipped,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Details   map[string]any `json:"details,omitempty"`
}

// Runner executes the named jobs through a common template: claim a run,
// execute the body, record the terminal state. Body failures are recorded
// and re-raised; the caller (scheduler or HTTP trigger) decides how to
// survive them.
type Runner struct {
	Tracker     *Tracker
	Pricing     *pricing.Service
	Snapshots   *snapshot.Service
	HoldingRepo domain.HoldingRepository
	Location    *time.Location
	Metrics     *observability.Metrics
	Log         zerolog.Logger
}

// NewRunner creates a new Runner instance. location determines which
// calendar day a snapshot trigger belongs to.
func NewRunner(
	tracker *Tracker,
	pricingService *pricing.Service,
	snapshotService *snapshot.Service,
	holdingRepo domain.HoldingRepository,
	location *time.Location,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Runner {
	return &Runner{
		Tracker:     tracker,
		Pricing:     pricingService,
		Snapshots:   snapshotService,
		HoldingRepo: holdingRepo,
		Location:    location,
		Metrics:     metrics,
		Log:         log,
	}
}

// Run executes the named job once, with the mutual-exclusion guarantee.
// A concurrent run yields a skipped result without side effects.
func (r *Runner) Run(ctx context.Context, name domain.JobName) (*RunResult, error) {
	if !name.Valid() {
		return nil, fmt.Errorf("unknown job %q", name)
	}

	running, err := r.Tracker.IsRunning(ctx, name)
	if err != nil {
		return nil, err
	}
	if running {
		r.Log.Info().Str("job", string(name)).Msg("job already running, skipping")
		r.observeRun(name, "skipped", 0)
		return &RunResult{Skipped: true, Reason: SkipReasonConcurrent}, nil
	}

	run, err := r.Tracker.Create(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyRunning) {
			// Lost the claim race to another trigger; same as the pre-check
			r.observeRun(name, "skipped", 0)
			return &RunResult{Skipped: true, Reason: SkipReasonConcurrent}, nil
		}
		return nil, err
	}

	start := time.Now()
	result, err := r.runBody(ctx, name)
	elapsed := time.Since(start)

	if err != nil {
		r.Log.Error().Str("job", string(name)).Err(err).Msg("job failed")
		r.Tracker.Fail(ctx, run.ID, err.Error(), map[string]any{"error": fmt.Sprintf("%+v", err)})
		r.observeRun(name, "failed", elapsed)
		return nil, err
	}

	r.Tracker.Complete(ctx, run.ID, result.Processed, result.Succeeded, result.Failed, result.Details)
	r.observeRun(name, "completed", elapsed)

	r.Log.Info().
		Str("job", string(name)).
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Dur("elapsed", elapsed).
		Msg("job completed")
	return result, nil
}

func (r *Runner) runBody(ctx context.Context, name domain.JobName) (*RunResult, error) {
	switch name {
	case domain.JobPriceUpdate:
		return r.runPriceUpdate(ctx)
	case domain.JobSnapshotCreation:
		return r.runSnapshotCreation(ctx)
	default:
		return nil, fmt.Errorf("unknown job %q", name)
	}
}

// runPriceUpdate refreshes the price cache for every distinct crypto ticker
// currently held.
func (r *Runner) runPriceUpdate(ctx context.Context) (*RunResult, error) {
	holdings, err := r.HoldingRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	tickers := distinctCryptoTickers(holdings)
	if len(tickers) == 0 {
		r.Log.Info().Msg("no crypto tickers to update")
		return &RunResult{Details: map[string]any{"message": "no crypto tickers found"}}, nil
	}

	r.Log.Info().
		Int("count", len(tickers)).
		Str("tickers", strings.Join(tickers, ",")).
		Msg("refreshing prices")

	results := r.Pricing.FetchPricesForTickers(ctx, tickers)

	succeeded := 0
	for _, res := range results {
		if res.Success {
			succeeded++
		}
	}

	return &RunResult{
		Processed: len(tickers),
		Succeeded: succeeded,
		Failed:    len(tickers) - succeeded,
		Details:   map[string]any{"results": results},
	}, nil
}

// runSnapshotCreation creates the snapshot set for today's date in the
// configured timezone, using the prices refreshed by the earlier job.
func (r *Runner) runSnapshotCreation(ctx context.Context) (*RunResult, error) {
	date := domain.SnapshotDateOf(time.Now().In(r.Location))

	result, err := r.Snapshots.CreateDailySnapshots(ctx, date)
	if err != nil {
		return nil, err
	}

	if result.Skipped {
		return &RunResult{Details: map[string]any{"message": result.Reason, "date": date}}, nil
	}

	return &RunResult{
		Processed: result.TickerSnapshots.Processed,
		Succeeded: result.TickerSnapshots.Succeeded,
		Failed:    result.TickerSnapshots.Failed,
		Details: map[string]any{
			"date":             date,
			"tickerSnapshots":  result.TickerSnapshots,
			"accountSnapshots": result.AccountSnapshots,
			"created":          result.Created(),
		},
	}, nil
}

// distinctCryptoTickers collects the unique tickers of crypto holdings,
// preserving first-seen order
func distinctCryptoTickers(holdings []*domain.Holding) []string {
	seen := make(map[string]bool)
	var tickers []string
	for _, h := range holdings {
		if h.Category != domain.CategoryCrypto || h.Ticker == nil {
			continue
		}
		ticker := domain.NormalizeTicker(*h.Ticker)
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}
	return tickers
}

func (r *Runner) observeRun(name domain.JobName, outcome string, elapsed time.Duration) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.JobRuns.WithLabelValues(string(name), outcome).Inc()
	if outcome != "skipped" {
		r.Metrics.JobDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
	}
}
