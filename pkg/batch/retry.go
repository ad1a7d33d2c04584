package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/trackops/waybill-tracker/pkg/store"
)

// retryDelay computes the backoff before retry round N. The backoff is
// linear, not exponential, so worst-case run latency stays predictable.
func (o *Orchestrator) retryDelay(round int) time.Duration {
	return o.config.RetryBaseDelay + time.Duration(round-1)*o.config.RetryDelayStep
}

// runRetryRounds resubmits the failing set for up to MaxRetryRounds rounds,
// merging newly-succeeded items into the run. It stops the moment the
// failing set empties, persists whatever remains as terminal failures, and
// returns the number of rounds executed.
//
// Each round retries all failing items together: one concurrent pass,
// bounded to the sub-batch width, with no further sub-batching. Every
// attempt is recorded to the quota tracker exactly once.
func (o *Orchestrator) runRetryRounds(ctx context.Context, run *BatchRun, failing []WorkItem, logger zerolog.Logger) int {
	logger.Info().
		Int("failing", len(failing)).
		Int("max_rounds", o.config.MaxRetryRounds).
		Msg("Starting retry rounds")

	sem := semaphore.NewWeighted(int64(o.config.BatchSize))
	rounds := 0

	for round := 1; round <= o.config.MaxRetryRounds; round++ {
		delay := o.retryDelay(round)

		logger.Info().
			Int("round", round).
			Int("max_rounds", o.config.MaxRetryRounds).
			Int("failing", len(failing)).
			Dur("delay", delay).
			Msg("Retry round starting")

		if err := o.sleep(ctx, delay); err != nil {
			// Cancelled between rounds. The failing items keep their
			// latest failure result; the run reports partial work.
			run.Status = StatusCancelled
			logger.Warn().Int("round", round).Msg("Retry rounds cancelled")
			return rounds
		}

		rounds = round
		results := o.fanOut(ctx, failing, sem)

		var stillFailing []WorkItem
		succeeded := 0

		for idx, result := range results {
			run.TotalCalls++
			o.quota.Record(ctx, result.Succeeded)

			if result.Succeeded {
				succeeded++
				o.persistSuccess(ctx, run, result, logger)
				logger.Info().
					Str("identifier", result.Identifier).
					Int("round", round).
					Msg("Retry succeeded")
			} else {
				run.Results[result.Identifier] = result
				stillFailing = append(stillFailing, failing[idx])
				logger.Warn().
					Str("identifier", result.Identifier).
					Str("reason", result.ErrorReason).
					Int("round", round).
					Msg("Retry failed")
			}
		}

		logger.Info().
			Int("round", round).
			Int("succeeded", succeeded).
			Int("still_failing", len(stillFailing)).
			Msg("Retry round complete")

		failing = stillFailing
		if len(failing) == 0 {
			logger.Info().Int("rounds", round).Msg("All items resolved, skipping remaining rounds")
			return rounds
		}
	}

	// Exhausted: the remaining items become terminal failure records.
	// Their last attempt already consumed quota; persisting the record
	// does not.
	logger.Error().
		Int("exhausted", len(failing)).
		Int("rounds", o.config.MaxRetryRounds).
		Msg("Items still failing after final retry round")

	reason := exhaustedReason(o.config.MaxRetryRounds)
	for _, item := range failing {
		terminal := &store.TrackResult{
			Identifier:  item.Identifier,
			SideTag:     item.SideTag,
			BatchID:     run.BatchID,
			Succeeded:   false,
			ErrorReason: reason,
			CheckedAt:   time.Now().UTC(),
		}

		if _, err := o.store.Upsert(ctx, terminal); err != nil {
			logger.Error().
				Err(err).
				Str("identifier", item.Identifier).
				Msg("Failed to persist terminal failure record")
		}

		run.Results[item.Identifier] = terminal
	}

	return rounds
}
