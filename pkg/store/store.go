package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound indicates no record exists for the identifier.
	ErrNotFound = errors.New("tracking record not found")

	// ErrInvalidRecord indicates the stored record is corrupted.
	ErrInvalidRecord = errors.New("invalid tracking record")
)

// Redis key prefix for tracking records. One key per identifier.
const redisKeyPrefix = "tracker:result:"

// Store persists tracking results in Redis keyed by identifier.
type Store struct {
	redis *redis.Client
}

// New creates a result store with a Redis backend.
func New(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis: redisClient,
	}
}

// Lookup retrieves the record for an identifier.
// Returns ErrNotFound if no record exists.
func (s *Store) Lookup(ctx context.Context, identifier string) (*TrackResult, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+identifier).Bytes()
	if err != nil {
		if err == redis.Nil {
			StoreMisses.Inc()
			return nil, ErrNotFound
		}
		StoreErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var result TrackResult
	if err := json.Unmarshal(data, &result); err != nil {
		StoreErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	StoreHits.Inc()
	return &result, nil
}

// LookupMany retrieves records for a set of identifiers in one round trip.
// The returned map contains an entry only for identifiers that have a
// record; absent identifiers are simply missing from the map.
func (s *Store) LookupMany(ctx context.Context, identifiers []string) (map[string]*TrackResult, error) {
	if len(identifiers) == 0 {
		return map[string]*TrackResult{}, nil
	}

	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		keys[i] = redisKeyPrefix + id
	}

	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		StoreErrors.WithLabelValues("lookup").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	results := make(map[string]*TrackResult, len(identifiers))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			StoreMisses.Inc()
			continue
		}

		var result TrackResult
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			StoreErrors.WithLabelValues("lookup").Inc()
			continue
		}

		StoreHits.Inc()
		results[identifiers[i]] = &result
	}

	return results, nil
}

// Upsert writes the latest attempt for an identifier, replacing any prior
// record. The side tag is the one exception: an existing tag is preserved
// when the new attempt carries none.
func (s *Store) Upsert(ctx context.Context, result *TrackResult) (*TrackResult, error) {
	if result == nil {
		return nil, fmt.Errorf("tracking result cannot be nil")
	}
	if result.Identifier == "" {
		return nil, fmt.Errorf("tracking result identifier cannot be empty")
	}

	stored := *result

	if stored.SideTag == "" {
		existing, err := s.Lookup(ctx, stored.Identifier)
		if err == nil && existing.SideTag != "" {
			stored.SideTag = existing.SideTag
		}
	}

	data, err := json.Marshal(&stored)
	if err != nil {
		StoreErrors.WithLabelValues("upsert").Inc()
		return nil, fmt.Errorf("marshal tracking record: %w", err)
	}

	if err := s.redis.Set(ctx, redisKeyPrefix+stored.Identifier, data, 0).Err(); err != nil {
		StoreErrors.WithLabelValues("upsert").Inc()
		return nil, fmt.Errorf("redis set: %w", err)
	}

	outcome := "failure"
	if stored.Succeeded {
		outcome = "success"
	}
	StoreUpserts.WithLabelValues(outcome).Inc()

	return &stored, nil
}

// Delete removes the record for an identifier.
func (s *Store) Delete(ctx context.Context, identifier string) error {
	if err := s.redis.Del(ctx, redisKeyPrefix+identifier).Err(); err != nil {
		StoreErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// CountAll returns the number of stored tracking records.
func (s *Store) CountAll(ctx context.Context) (int, error) {
	var cursor uint64
	count := 0

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}

		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}
