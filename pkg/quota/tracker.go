package quota

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_quota_calls_total",
		Help: "Total carrier API calls recorded against the daily quota by outcome",
	}, []string{"outcome"})

	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_quota_remaining",
		Help: "Remaining carrier API calls for the current day at last check",
	})

	quotaPersistErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_quota_persist_errors_total",
		Help: "Total failures persisting the quota counter to Redis",
	})
)

// Tracker is the process-wide daily call counter.
//
// The in-memory counter is the single authoritative writer path: Record
// increments it under a mutex before anything else, so usage is never
// under-counted even when Redis is unreachable. Redis holds the shared
// cross-process view; reads take whichever count is higher.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu   sync.Mutex
	days map[string]*Usage

	// now is replaceable for day-rollover tests.
	now func() time.Time
}

// NewTracker creates a quota tracker. The Redis client may be nil, in which
// case the counter is process-local only.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
		days:   make(map[string]*Usage),
		now:    time.Now,
	}
}

// Remaining returns max(0, limit - calls made today). It never blocks on
// anything but the counter mutex; the Redis read is best-effort.
func (t *Tracker) Remaining(ctx context.Context, limit int) int {
	usage := t.UsageToday(ctx)

	remaining := usage.Remaining(limit)
	quotaRemaining.Set(float64(remaining))

	t.logger.Debug().
		Str("day", usage.Day).
		Int("calls", usage.Calls).
		Int("remaining", remaining).
		Msg("Quota checked")

	return remaining
}

// Record counts one call attempt against today's quota. The in-memory
// increment always succeeds; a failed Redis persist is logged and the call
// still counts as consumed.
func (t *Tracker) Record(ctx context.Context, success bool) {
	day := dayKey(t.now())

	t.mu.Lock()
	usage := t.localDay(day)
	usage.Calls++
	if success {
		usage.Succeeded++
	} else {
		usage.Failed++
	}
	t.mu.Unlock()

	outcome := "failure"
	if success {
		outcome = "success"
	}
	quotaCallsTotal.WithLabelValues(outcome).Inc()

	if t.redis == nil {
		return
	}

	outcomeField := fieldFailed
	if success {
		outcomeField = fieldSucceeded
	}

	pipe := t.redis.Pipeline()
	pipe.HIncrBy(ctx, redisKeyPrefix+day, fieldCalls, 1)
	pipe.HIncrBy(ctx, redisKeyPrefix+day, outcomeField, 1)

	if _, err := pipe.Exec(ctx); err != nil {
		quotaPersistErrorsTotal.Inc()
		t.logger.Warn().
			Err(err).
			Str("day", day).
			Msg("Failed to persist quota counter, in-memory count stands")
	}
}

// UsageToday returns today's usage, merging the local counter with the
// shared Redis record field by field (higher value wins).
func (t *Tracker) UsageToday(ctx context.Context) Usage {
	day := dayKey(t.now())

	t.mu.Lock()
	usage := *t.localDay(day)
	t.mu.Unlock()

	if t.redis == nil {
		return usage
	}

	fields, err := t.redis.HGetAll(ctx, redisKeyPrefix+day).Result()
	if err != nil {
		t.logger.Warn().
			Err(err).
			Str("day", day).
			Msg("Failed to read shared quota counter, using local count")
		return usage
	}

	shared := usageFromFields(day, fields)
	if shared.Calls > usage.Calls {
		usage.Calls = shared.Calls
	}
	if shared.Succeeded > usage.Succeeded {
		usage.Succeeded = shared.Succeeded
	}
	if shared.Failed > usage.Failed {
		usage.Failed = shared.Failed
	}

	return usage
}

// localDay returns today's in-memory counter, creating it lazily.
// Creation is idempotent under the caller-held mutex.
func (t *Tracker) localDay(day string) *Usage {
	usage, ok := t.days[day]
	if !ok {
		usage = &Usage{Day: day}
		t.days[day] = usage
	}
	return usage
}

// usageFromFields decodes a Redis usage hash. Malformed or missing fields
// read as zero.
func usageFromFields(day string, fields map[string]string) Usage {
	return Usage{
		Day:       day,
		Calls:     atoiOrZero(fields[fieldCalls]),
		Succeeded: atoiOrZero(fields[fieldSucceeded]),
		Failed:    atoiOrZero(fields[fieldFailed]),
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0
		}
		n = n*10 + int(ch-'0')
	}
	return n
}
