package quota

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestRemaining_Limit(t *testing.T) {
	tests := []struct {
		name     string
		calls    int
		limit    int
		expected int
	}{
		{name: "untouched day", calls: 0, limit: 250, expected: 250},
		{name: "partially used", calls: 100, limit: 250, expected: 150},
		{name: "exactly at limit", calls: 250, limit: 250, expected: 0},
		{name: "over limit floors at zero", calls: 300, limit: 250, expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := NewTracker(nil, testLogger())

			for i := 0; i < tt.calls; i++ {
				tracker.Record(context.Background(), true)
			}

			if got := tracker.Remaining(context.Background(), tt.limit); got != tt.expected {
				t.Errorf("Remaining(%d) = %d, want %d", tt.limit, got, tt.expected)
			}
		})
	}
}

func TestRecord_Outcomes(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	ctx := context.Background()

	tracker.Record(ctx, true)
	tracker.Record(ctx, true)
	tracker.Record(ctx, false)

	usage := tracker.UsageToday(ctx)

	if usage.Calls != 3 {
		t.Errorf("Calls = %d, want 3", usage.Calls)
	}
	if usage.Succeeded != 2 {
		t.Errorf("Succeeded = %d, want 2", usage.Succeeded)
	}
	if usage.Failed != 1 {
		t.Errorf("Failed = %d, want 1", usage.Failed)
	}
}

func TestRecord_Concurrent(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	ctx := context.Background()

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				tracker.Record(ctx, i%2 == 0)
			}
		}(i)
	}
	wg.Wait()

	usage := tracker.UsageToday(ctx)
	if usage.Calls != goroutines*perGoroutine {
		t.Errorf("Calls = %d, want %d (lost updates under concurrency)", usage.Calls, goroutines*perGoroutine)
	}
	if usage.Succeeded+usage.Failed != usage.Calls {
		t.Errorf("Succeeded (%d) + Failed (%d) != Calls (%d)", usage.Succeeded, usage.Failed, usage.Calls)
	}
}

func TestDayRollover(t *testing.T) {
	tracker := NewTracker(nil, testLogger())
	ctx := context.Background()

	day1 := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 0, 10, 0, 0, time.UTC)

	tracker.now = func() time.Time { return day1 }
	tracker.Record(ctx, true)
	tracker.Record(ctx, false)

	if got := tracker.Remaining(ctx, 10); got != 8 {
		t.Errorf("Remaining before rollover = %d, want 8", got)
	}

	// Counter starts fresh the next day; the old record is kept untouched.
	tracker.now = func() time.Time { return day2 }

	if got := tracker.Remaining(ctx, 10); got != 10 {
		t.Errorf("Remaining after rollover = %d, want 10", got)
	}

	usage := tracker.UsageToday(ctx)
	if usage.Day != "2024-03-02" {
		t.Errorf("Day = %q, want 2024-03-02", usage.Day)
	}
	if usage.Calls != 0 {
		t.Errorf("Calls after rollover = %d, want 0", usage.Calls)
	}
}

func TestRecord_NoRedisStillCounts(t *testing.T) {
	// With no backing store the counter must still consume quota
	// conservatively rather than under-count.
	tracker := NewTracker(nil, testLogger())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tracker.Record(ctx, false)
	}

	if got := tracker.Remaining(ctx, 5); got != 0 {
		t.Errorf("Remaining = %d, want 0", got)
	}
}

func TestUsageFromFields(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		expected Usage
	}{
		{
			name:     "complete record",
			fields:   map[string]string{"calls": "12", "succeeded": "10", "failed": "2"},
			expected: Usage{Day: "2024-03-01", Calls: 12, Succeeded: 10, Failed: 2},
		},
		{
			name:     "empty record",
			fields:   map[string]string{},
			expected: Usage{Day: "2024-03-01"},
		},
		{
			name:     "malformed field reads as zero",
			fields:   map[string]string{"calls": "abc", "succeeded": "3"},
			expected: Usage{Day: "2024-03-01", Succeeded: 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := usageFromFields("2024-03-01", tt.fields)
			if got != tt.expected {
				t.Errorf("usageFromFields() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}
