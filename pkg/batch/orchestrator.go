package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/trackops/waybill-tracker/pkg/logging"
	"github.com/trackops/waybill-tracker/pkg/store"
)

// Orchestrator drives a work list through quota admission, cache reuse,
// concurrent sub-batch dispatch, and the retry protocol.
type Orchestrator struct {
	fetcher Fetcher
	store   ResultStore
	quota   QuotaTracker
	config  Config
	logger  zerolog.Logger

	// sleep is replaceable so tests can count delays instead of waiting
	// them out.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. Zero config fields fall back to defaults.
func New(fetcher Fetcher, resultStore ResultStore, quota QuotaTracker, cfg Config) (*Orchestrator, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if resultStore == nil {
		return nil, fmt.Errorf("result store is required")
	}
	if quota == nil {
		return nil, fmt.Errorf("quota tracker is required")
	}

	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = defaults.BatchDelay
	}
	if cfg.MaxRetryRounds <= 0 {
		cfg.MaxRetryRounds = defaults.MaxRetryRounds
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaults.RetryBaseDelay
	}
	if cfg.RetryDelayStep < 0 {
		cfg.RetryDelayStep = defaults.RetryDelayStep
	}
	if cfg.CacheFreshness <= 0 {
		cfg.CacheFreshness = defaults.CacheFreshness
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = defaults.DailyLimit
	}

	return &Orchestrator{
		fetcher: fetcher,
		store:   resultStore,
		quota:   quota,
		config:  cfg,
		logger:  logging.NewLogger("batch-orchestrator"),
		sleep:   sleepCtx,
	}, nil
}

// Run processes a work list to completion and returns the run summary.
// Per-item problems are captured in the results, never returned as errors;
// cancellation yields a partial run with StatusCancelled.
func (o *Orchestrator) Run(ctx context.Context, items []WorkItem) *BatchRun {
	startTime := time.Now()

	run := &BatchRun{
		BatchID:   newBatchID(),
		StartedAt: startTime,
		Status:    StatusCompleted,
		Results:   make(map[string]*store.TrackResult),
	}

	work := dedupe(items)
	run.RequestedCount = len(work)

	logger := o.logger.With().Str("batch_id", run.BatchID).Logger()
	logger.Info().
		Int("requested", len(items)).
		Int("unique", len(work)).
		Msg("Batch run started")

	if len(work) == 0 {
		o.finalize(run, startTime, 0, logger)
		return run
	}

	// Quota admission
	remaining := o.quota.Remaining(ctx, o.config.DailyLimit)
	if remaining == 0 {
		logger.Error().Int("items", len(work)).Msg("Daily quota exhausted, nothing attempted")
		for _, item := range work {
			o.markFailed(run, item, ReasonQuotaExhausted)
		}
		o.finalize(run, startTime, 0, logger)
		return run
	}

	if len(work) > remaining {
		logger.Warn().
			Int("items", len(work)).
			Int("remaining", remaining).
			Msg("Batch larger than remaining quota, truncating")

		for _, item := range work[remaining:] {
			o.markFailed(run, item, ReasonQuotaExceeded)
		}
		work = work[:remaining]
	}

	// Cache partition: fresh records are satisfied without a remote call.
	toFetch := o.partitionCached(ctx, run, work, logger)

	// First pass in sub-batches, then retry rounds for the failures.
	failing, cancelled := o.dispatch(ctx, run, toFetch, logger)

	rounds := 0
	if !cancelled && len(failing) > 0 {
		rounds = o.runRetryRounds(ctx, run, failing, logger)
	}

	o.finalize(run, startTime, rounds, logger)
	return run
}

// partitionCached resolves fresh cache hits into the run's results and
// returns the items that still need a remote call.
func (o *Orchestrator) partitionCached(ctx context.Context, run *BatchRun, work []WorkItem, logger zerolog.Logger) []WorkItem {
	identifiers := make([]string, len(work))
	for i, item := range work {
		identifiers[i] = item.Identifier
	}

	cached, err := o.store.LookupMany(ctx, identifiers)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache lookup failed, fetching everything")
		return work
	}

	toFetch := make([]WorkItem, 0, len(work))
	for _, item := range work {
		record := cached[item.Identifier]
		if !record.IsFresh(o.config.CacheFreshness) {
			toFetch = append(toFetch, item)
			continue
		}

		// A side tag supplied now is attached to a record that had none.
		if item.SideTag != "" && record.SideTag == "" {
			record.SideTag = item.SideTag
			if _, err := o.store.Upsert(ctx, record); err != nil {
				logger.Warn().
					Err(err).
					Str("identifier", item.Identifier).
					Msg("Failed to attach side tag to cached record")
			}
		}

		logger.Debug().
			Str("identifier", item.Identifier).
			Dur("age", record.Age()).
			Msg("Using cached record")

		run.Results[item.Identifier] = record
		batchCacheHitsTotal.Inc()
	}

	return toFetch
}

// dispatch runs the first pass over the to-fetch list in fixed-size
// sub-batches. It returns the items whose attempt failed and whether the
// run was cancelled mid-pass.
func (o *Orchestrator) dispatch(ctx context.Context, run *BatchRun, toFetch []WorkItem, logger zerolog.Logger) ([]WorkItem, bool) {
	if len(toFetch) == 0 {
		return nil, false
	}

	totalBatches := (len(toFetch) + o.config.BatchSize - 1) / o.config.BatchSize
	var failing []WorkItem

	for i := 0; i < len(toFetch); i += o.config.BatchSize {
		if ctx.Err() != nil {
			o.markCancelled(run, toFetch[i:])
			return failing, true
		}

		end := i + o.config.BatchSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		sub := toFetch[i:end]

		logger.Info().
			Int("sub_batch", i/o.config.BatchSize+1).
			Int("total_sub_batches", totalBatches).
			Int("items", len(sub)).
			Msg("Dispatching sub-batch")

		batchSubBatchesTotal.Inc()
		results := o.fanOut(ctx, sub, nil)

		for idx, result := range results {
			run.TotalCalls++
			o.quota.Record(ctx, result.Succeeded)

			if result.Succeeded {
				o.persistSuccess(ctx, run, result, logger)
			} else {
				run.Results[result.Identifier] = result
				failing = append(failing, sub[idx])
				logger.Warn().
					Str("identifier", result.Identifier).
					Str("reason", result.ErrorReason).
					Msg("Item failed first pass")
			}
		}

		if end < len(toFetch) {
			logger.Debug().
				Dur("delay", o.config.BatchDelay).
				Msg("Waiting before next sub-batch")

			if err := o.sleep(ctx, o.config.BatchDelay); err != nil {
				o.markCancelled(run, toFetch[end:])
				return failing, true
			}
		}
	}

	return failing, false
}

// fanOut issues all items' remote calls concurrently and joins them.
// A slow or failing item never blocks collection of its siblings; every
// slot in the returned slice is a non-nil result. A non-nil semaphore
// bounds in-flight calls.
func (o *Orchestrator) fanOut(ctx context.Context, items []WorkItem, sem *semaphore.Weighted) []*store.TrackResult {
	results := make([]*store.TrackResult, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item WorkItem) {
			defer wg.Done()

			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					results[i] = &store.TrackResult{
						Identifier:  item.Identifier,
						SideTag:     item.SideTag,
						Succeeded:   false,
						ErrorReason: ReasonCancelled,
						CheckedAt:   time.Now().UTC(),
					}
					return
				}
				defer sem.Release(1)
			}

			result := o.fetcher.Fetch(ctx, item.Identifier, item.SideTag)
			if result == nil {
				result = &store.TrackResult{
					Identifier:  item.Identifier,
					SideTag:     item.SideTag,
					Succeeded:   false,
					ErrorReason: "no result returned",
					CheckedAt:   time.Now().UTC(),
				}
			}
			results[i] = result
		}(i, item)
	}
	wg.Wait()

	return results
}

// persistSuccess records a successful attempt in the run and writes it to
// the store. A failed write is logged; the item still counts as succeeded
// for the run (reconciliation is a later concern).
func (o *Orchestrator) persistSuccess(ctx context.Context, run *BatchRun, result *store.TrackResult, logger zerolog.Logger) {
	result.BatchID = run.BatchID

	stored, err := o.store.Upsert(ctx, result)
	if err != nil {
		logger.Error().
			Err(err).
			Str("identifier", result.Identifier).
			Msg("Failed to persist tracking result")
		stored = result
	}

	run.Results[result.Identifier] = stored
}

// markFailed records a synthetic failure for an item that was never
// dispatched.
func (o *Orchestrator) markFailed(run *BatchRun, item WorkItem, reason string) {
	run.Results[item.Identifier] = &store.TrackResult{
		Identifier:  item.Identifier,
		SideTag:     item.SideTag,
		BatchID:     run.BatchID,
		Succeeded:   false,
		ErrorReason: reason,
		CheckedAt:   time.Now().UTC(),
	}
}

// markCancelled fails every unattempted item with the cancelled reason and
// flips the run status.
func (o *Orchestrator) markCancelled(run *BatchRun, unattempted []WorkItem) {
	run.Status = StatusCancelled
	for _, item := range unattempted {
		o.markFailed(run, item, ReasonCancelled)
	}
}

// finalize computes the run counts from the result set and logs the summary.
func (o *Orchestrator) finalize(run *BatchRun, startTime time.Time, rounds int, logger zerolog.Logger) {
	run.SucceededCount = 0
	run.FailedCount = 0
	for _, result := range run.Results {
		if result.Succeeded {
			run.SucceededCount++
			batchItemsTotal.WithLabelValues("success").Inc()
		} else {
			run.FailedCount++
			batchItemsTotal.WithLabelValues("failure").Inc()
		}
	}

	run.Duration = time.Since(startTime)

	batchRunsTotal.WithLabelValues(string(run.Status)).Inc()
	batchRetryRounds.Observe(float64(rounds))
	batchRunDuration.Observe(run.Duration.Seconds())

	logger.Info().
		Str("status", string(run.Status)).
		Int("requested", run.RequestedCount).
		Int("succeeded", run.SucceededCount).
		Int("failed", run.FailedCount).
		Int("calls_made", run.TotalCalls).
		Int("retry_rounds", rounds).
		Dur("duration", run.Duration).
		Msg("Batch run complete")
}

// EstimateDuration predicts how long a run over count items takes,
// including inter-batch delays and a retry buffer.
func (o *Orchestrator) EstimateDuration(count int) time.Duration {
	if count <= 0 {
		return 0
	}

	batches := (count + o.config.BatchSize - 1) / o.config.BatchSize
	base := time.Duration(batches-1) * o.config.BatchDelay
	processing := time.Duration(count) * 500 * time.Millisecond

	// Assume roughly 10% of items need two retries.
	retryBuffer := time.Duration(float64(count)*0.1*2) * (o.config.RetryBaseDelay + o.config.RetryDelayStep)

	return base + processing + retryBuffer
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
