// Package carrier provides the HTTP client for the third-party shipment
// tracking API. A fetch resolves to a structured success or failure; only
// construction problems surface as errors.
package carrier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/trackops/waybill-tracker/pkg/logging"
	"github.com/trackops/waybill-tracker/pkg/store"
)

// Prometheus metrics for carrier API operations.
var (
	carrierRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_carrier_requests_total",
		Help: "Total carrier API requests by status",
	}, []string{"status"})

	carrierRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_carrier_request_duration_seconds",
		Help:    "Carrier API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	carrierErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_carrier_errors_total",
		Help: "Total carrier API errors by class",
	}, []string{"class"})
)

// Config holds the carrier client configuration.
type Config struct {
	// BaseURL is the tracking endpoint, e.g. https://api-eu.dhl.com/track/shipments
	BaseURL string

	// APIKey is the carrier-issued key, sent on every request.
	APIKey string

	// Timeout is the per-call timeout.
	Timeout time.Duration

	// RequestsPerSecond smooths the rate at which calls are issued.
	// Zero disables smoothing.
	RequestsPerSecond float64
}

// DefaultConfig returns a safe default configuration for the given API key.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:           "https://api-eu.dhl.com/track/shipments",
		APIKey:            apiKey,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 5,
	}
}

// Client is the carrier tracking API client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a carrier client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		config:  cfg,
		logger:  logging.NewLogger("carrier-client"),
	}, nil
}

// Fetch tracks a single shipment. Ordinary problems (not found, timeout,
// carrier errors, malformed payloads) resolve to a result with
// Succeeded=false and a reason; Fetch itself never fails.
func (c *Client) Fetch(ctx context.Context, identifier, sideTag string) *store.TrackResult {
	startTime := time.Now()
	defer func() {
		carrierRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		carrierRequestsTotal.WithLabelValues("cancelled").Inc()
		return c.failure(identifier, sideTag, "request cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.config.BaseURL+"?trackingNumber="+identifier, nil)
	if err != nil {
		carrierErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return c.failure(identifier, sideTag, fmt.Sprintf("create request: %v", err))
	}

	req.Header.Set("DHL-API-Key", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("identifier", identifier).
		Str("side_tag", sideTag).
		Msg("Executing carrier request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		carrierErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		carrierRequestsTotal.WithLabelValues("network_error").Inc()

		reason := fmt.Sprintf("network error: %v", err)
		if isTimeout(err) {
			reason = "request timeout"
		}

		c.logger.Warn().
			Err(err).
			Str("identifier", identifier).
			Msg("Carrier request failed")

		return c.failure(identifier, sideTag, reason)
	}
	defer resp.Body.Close()

	carrierRequestsTotal.WithLabelValues(fmt.Sprintf("%d", resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		errClass := classifyStatus(resp.StatusCode)
		carrierErrorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Warn().
			Str("identifier", identifier).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Carrier request error")

		return c.failure(identifier, sideTag, reasonForStatus(resp.StatusCode))
	}

	result := parseTrackingResponse(resp.Body, identifier, sideTag)
	if !result.Succeeded {
		carrierErrorsTotal.WithLabelValues(string(ErrorClassPayload)).Inc()
		c.logger.Warn().
			Str("identifier", identifier).
			Str("reason", result.ErrorReason).
			Msg("Carrier response unusable")
	}

	return result
}

// TestConnection probes the carrier API. Any response that proves the
// endpoint is reachable counts, including ordinary 4xx answers.
func (c *Client) TestConnection(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, "GET", c.config.BaseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("DHL-API-Key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Carrier connection test failed")
		return false
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest, http.StatusNotFound:
		return true
	default:
		return false
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// failure builds a failed result for an attempt.
func (c *Client) failure(identifier, sideTag, reason string) *store.TrackResult {
	return &store.TrackResult{
		Identifier:  identifier,
		SideTag:     sideTag,
		Succeeded:   false,
		ErrorReason: reason,
		CheckedAt:   time.Now().UTC(),
	}
}

// isTimeout reports whether an HTTP client error was a timeout.
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
