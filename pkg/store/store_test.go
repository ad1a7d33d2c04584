package store

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test Redis client. Unit tests skip when no local
// Redis is available; tests/integration covers the same paths with
// testcontainers.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestNew_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("New should panic with nil redis client")
		}
	}()
	New(nil)
}

func TestStore_UpsertAndLookup(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	result := &TrackResult{
		Identifier:  "WB1234567890",
		SideTag:     "BIN-7",
		StatusCode:  "transit",
		StatusText:  "Shipment in transit",
		Origin:      "Leipzig, DE",
		Destination: "Lisbon, PT",
		Succeeded:   true,
		CheckedAt:   time.Now(),
	}

	if _, err := s.Upsert(ctx, result); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Lookup(ctx, "WB1234567890")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	if got.StatusCode != "transit" {
		t.Errorf("StatusCode = %q, want transit", got.StatusCode)
	}
	if got.SideTag != "BIN-7" {
		t.Errorf("SideTag = %q, want BIN-7", got.SideTag)
	}
	if !got.Succeeded {
		t.Error("Succeeded = false, want true")
	}
}

func TestStore_Lookup_NotFound(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)

	_, err := s.Lookup(context.Background(), "UNKNOWN")
	if err != ErrNotFound {
		t.Errorf("Lookup error = %v, want ErrNotFound", err)
	}
}

func TestStore_Upsert_PreservesSideTag(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	first := &TrackResult{
		Identifier: "WB0001",
		SideTag:    "BIN-3",
		Succeeded:  false,
		CheckedAt:  time.Now().Add(-time.Hour),
	}
	if _, err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	// New attempt without a side tag must not drop the stored one.
	second := &TrackResult{
		Identifier: "WB0001",
		StatusCode: "delivered",
		Succeeded:  true,
		CheckedAt:  time.Now(),
	}
	stored, err := s.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if stored.SideTag != "BIN-3" {
		t.Errorf("SideTag after merge = %q, want BIN-3", stored.SideTag)
	}

	got, err := s.Lookup(ctx, "WB0001")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got.SideTag != "BIN-3" {
		t.Errorf("stored SideTag = %q, want BIN-3", got.SideTag)
	}
	if got.StatusCode != "delivered" {
		t.Errorf("StatusCode = %q, want delivered (record otherwise replaced)", got.StatusCode)
	}
}

func TestStore_Upsert_ReplacesSideTag(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	first := &TrackResult{Identifier: "WB0002", SideTag: "BIN-1", CheckedAt: time.Now()}
	if _, err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}

	second := &TrackResult{Identifier: "WB0002", SideTag: "BIN-2", CheckedAt: time.Now()}
	stored, err := s.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	if stored.SideTag != "BIN-2" {
		t.Errorf("SideTag = %q, want BIN-2 (new tag wins)", stored.SideTag)
	}
}

func TestStore_LookupMany(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	for _, id := range []string{"WB01", "WB02", "WB03"} {
		if _, err := s.Upsert(ctx, &TrackResult{Identifier: id, Succeeded: true, CheckedAt: time.Now()}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	results, err := s.LookupMany(ctx, []string{"WB01", "WB03", "WB99"})
	if err != nil {
		t.Fatalf("LookupMany failed: %v", err)
	}

	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
	if _, ok := results["WB99"]; ok {
		t.Error("absent identifier should be missing from the map")
	}
	if results["WB01"] == nil || results["WB03"] == nil {
		t.Error("expected records for WB01 and WB03")
	}
}

func TestStore_LookupMany_Empty(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)

	results, err := s.LookupMany(context.Background(), nil)
	if err != nil {
		t.Fatalf("LookupMany failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0", len(results))
	}
}

func TestStore_Delete(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	if _, err := s.Upsert(ctx, &TrackResult{Identifier: "WB10", CheckedAt: time.Now()}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if err := s.Delete(ctx, "WB10"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := s.Lookup(ctx, "WB10"); err != ErrNotFound {
		t.Errorf("Lookup after delete = %v, want ErrNotFound", err)
	}
}

func TestStore_CountAll(t *testing.T) {
	client := setupTestRedis(t)
	s := New(client)
	ctx := context.Background()

	for _, id := range []string{"WB20", "WB21", "WB22", "WB23"} {
		if _, err := s.Upsert(ctx, &TrackResult{Identifier: id, CheckedAt: time.Now()}); err != nil {
			t.Fatalf("Upsert %s failed: %v", id, err)
		}
	}

	count, err := s.CountAll(ctx)
	if err != nil {
		t.Fatalf("CountAll failed: %v", err)
	}
	if count != 4 {
		t.Errorf("CountAll = %d, want 4", count)
	}
}
