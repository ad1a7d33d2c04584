// Package batch implements the rate-limited batch tracking orchestrator:
// deduplication, daily-quota admission, cache reuse, concurrent sub-batch
// dispatch with inter-batch delay, and the multi-round retry protocol for
// failed items.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trackops/waybill-tracker/pkg/store"
)

// WorkItem is one tracking request. Immutable once enqueued.
type WorkItem struct {
	// Identifier is the tracking/waybill number (uniqueness key).
	Identifier string `json:"identifier"`

	// SideTag is an optional caller-supplied association (bin code),
	// carried through processing but never interpreted.
	SideTag string `json:"side_tag,omitempty"`
}

// RunStatus is the terminal state of a batch run.
type RunStatus string

const (
	// StatusCompleted means every item ran to a final outcome.
	StatusCompleted RunStatus = "completed"

	// StatusCancelled means the caller aborted the run; the returned
	// results are partial and unattempted items carry a cancelled reason.
	StatusCancelled RunStatus = "cancelled"
)

// Per-item failure reasons produced by the orchestrator itself.
const (
	// ReasonQuotaExhausted marks items rejected because no quota
	// remained at the start of the run.
	ReasonQuotaExhausted = "quota exhausted"

	// ReasonQuotaExceeded marks items truncated away because the run was
	// larger than the remaining quota. They were never attempted.
	ReasonQuotaExceeded = "quota exceeded, not attempted"

	// ReasonCancelled marks items left unattempted when the caller
	// cancelled the run.
	ReasonCancelled = "cancelled"
)

// exhaustedReason is the terminal failure reason for items that used up
// their whole retry budget.
func exhaustedReason(rounds int) string {
	return fmt.Sprintf("failed after %d retry attempts", rounds)
}

// BatchRun is the immutable summary of one top-level invocation.
// SucceededCount + FailedCount always equals RequestedCount.
type BatchRun struct {
	// BatchID is a unique opaque token for this run.
	BatchID string `json:"batch_id"`

	// RequestedCount is the number of unique items admitted to the run.
	RequestedCount int `json:"requested_count"`

	SucceededCount int `json:"succeeded_count"`
	FailedCount    int `json:"failed_count"`

	// TotalCalls is the number of remote calls actually issued.
	// Cache hits and quota-rejected items issue none.
	TotalCalls int `json:"total_calls_made"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Status RunStatus `json:"status"`

	// Results holds the final outcome per identifier, exactly one entry
	// per unique admitted identifier.
	Results map[string]*store.TrackResult `json:"results"`
}

// Fetcher is the remote tracking client boundary. A fetch resolves to a
// structured success or failure; it never fails at the call level.
type Fetcher interface {
	Fetch(ctx context.Context, identifier, sideTag string) *store.TrackResult
}

// ResultStore is the persistence boundary the orchestrator consults for
// cache reuse and writes completed attempts to.
type ResultStore interface {
	LookupMany(ctx context.Context, identifiers []string) (map[string]*store.TrackResult, error)
	Upsert(ctx context.Context, result *store.TrackResult) (*store.TrackResult, error)
}

// QuotaTracker is the daily call budget boundary.
type QuotaTracker interface {
	Remaining(ctx context.Context, limit int) int
	Record(ctx context.Context, success bool)
}

// Config holds the orchestrator configuration.
type Config struct {
	// BatchSize is the number of items dispatched concurrently per
	// sub-batch. Retry rounds are bounded to the same width.
	BatchSize int

	// BatchDelay is the fixed sleep between sub-batches.
	BatchDelay time.Duration

	// MaxRetryRounds bounds the retry protocol.
	MaxRetryRounds int

	// RetryBaseDelay is the sleep before the first retry round.
	RetryBaseDelay time.Duration

	// RetryDelayStep is added per additional round (linear backoff).
	RetryDelayStep time.Duration

	// CacheFreshness is the maximum record age for cache reuse.
	CacheFreshness time.Duration

	// DailyLimit is the daily cap on remote calls.
	DailyLimit int
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:      5,
		BatchDelay:     7 * time.Second,
		MaxRetryRounds: 5,
		RetryBaseDelay: 10 * time.Second,
		RetryDelayStep: 5 * time.Second,
		CacheFreshness: time.Hour,
		DailyLimit:     250,
	}
}

// NormalizeIdentifier canonicalizes a tracking number for use as a key.
// Waybill numbers are case-insensitive uppercase codes.
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

// dedupe normalizes identifiers and drops duplicates and empty entries,
// preserving first-occurrence order. The first occurrence's side tag wins.
func dedupe(items []WorkItem) []WorkItem {
	seen := make(map[string]struct{}, len(items))
	work := make([]WorkItem, 0, len(items))

	for _, item := range items {
		id := NormalizeIdentifier(item.Identifier)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		work = append(work, WorkItem{Identifier: id, SideTag: item.SideTag})
	}

	return work
}

// newBatchID generates a unique batch token, e.g. batch_20240301_101500_1a2b3c4d.
func newBatchID() string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("batch_%s_%s", timestamp, uuid.NewString()[:8])
}
