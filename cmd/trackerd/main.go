package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/trackops/waybill-tracker/pkg/batch"
	"github.com/trackops/waybill-tracker/pkg/carrier"
	"github.com/trackops/waybill-tracker/pkg/logging"
	"github.com/trackops/waybill-tracker/pkg/quota"
	"github.com/trackops/waybill-tracker/pkg/store"
)

func main() {
	// Configuration from environment
	redisURL := getEnv("REDIS_URL", "localhost:6379")
	port := getEnv("PORT", "8080")
	apiKey := getEnv("CARRIER_API_KEY", "")
	apiURL := getEnv("CARRIER_API_URL", "")
	logLevel := getEnv("LOG_LEVEL", "info")

	logCfg := logging.DefaultConfig()
	logCfg.Level = logging.LogLevel(logLevel)
	logger := logging.Setup(logCfg).With().Str("component", "trackerd").Logger()

	// Setup Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: getEnv("REDIS_PASSWORD", ""),
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
	}
	logger.Info().Str("addr", redisURL).Msg("Connected to Redis")

	// Carrier client
	carrierCfg := carrier.DefaultConfig(apiKey)
	if apiURL != "" {
		carrierCfg.BaseURL = apiURL
	}

	carrierClient, err := carrier.New(carrierCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create carrier client")
	}

	// Orchestrator
	batchCfg := batch.DefaultConfig()
	batchCfg.DailyLimit = getEnvInt("DAILY_LIMIT", batchCfg.DailyLimit)
	batchCfg.BatchSize = getEnvInt("BATCH_SIZE", batchCfg.BatchSize)

	resultStore := store.New(redisClient)
	quotaTracker := quota.NewTracker(redisClient, logging.NewLogger("quota-tracker"))

	orchestrator, err := batch.New(carrierClient, resultStore, quotaTracker, batchCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	// HTTP Server
	http.HandleFunc("/api/v1/track/batch", trackBatchHandler(orchestrator, logger))
	http.HandleFunc("/api/v1/usage", usageHandler(quotaTracker, batchCfg.DailyLimit))
	http.HandleFunc("/health", healthHandler(redisClient, carrierClient))
	http.Handle("/metrics", promhttp.Handler())

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("Starting tracker server")

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// trackRequest is the batch endpoint's request body.
type trackRequest struct {
	Items []trackRequestItem `json:"items"`
}

type trackRequestItem struct {
	TrackingNumber string `json:"tracking_number"`
	BinID          string `json:"bin_id,omitempty"`
}

func trackBatchHandler(orchestrator *batch.Orchestrator, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req trackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		if len(req.Items) == 0 {
			http.Error(w, "no items provided", http.StatusBadRequest)
			return
		}

		items := make([]batch.WorkItem, len(req.Items))
		for i, item := range req.Items {
			items[i] = batch.WorkItem{
				Identifier: item.TrackingNumber,
				SideTag:    item.BinID,
			}
		}

		estimate := orchestrator.EstimateDuration(len(items))
		logger.Info().
			Int("items", len(items)).
			Dur("estimated_duration", estimate).
			Msg("Batch request accepted")

		// A run can take minutes for large batches; cap it well above the
		// worst-case estimate.
		ctx, cancel := context.WithTimeout(r.Context(), estimate+10*time.Minute)
		defer cancel()

		run := orchestrator.Run(ctx, items)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(run); err != nil {
			logger.Error().Err(err).Msg("Failed to write response")
		}
	}
}

func usageHandler(tracker *quota.Tracker, limit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage := tracker.UsageToday(r.Context())

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"date":      usage.Day,
			"calls":     usage.Calls,
			"succeeded": usage.Succeeded,
			"failed":    usage.Failed,
			"limit":     limit,
			"remaining": usage.Remaining(limit),
		})
	}
}

func healthHandler(redisClient *redis.Client, carrierClient *carrier.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK

		if err := redisClient.Ping(ctx).Err(); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
			code = http.StatusServiceUnavailable
		}

		if !carrierClient.TestConnection(ctx) {
			status["status"] = "degraded"
			status["carrier"] = "unreachable"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
