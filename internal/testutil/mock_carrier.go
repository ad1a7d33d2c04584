// Package testutil provides testing utilities for the waybill tracker.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior of the mock carrier for one identifier.
type MockResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration

	// FailuresBeforeSuccess serves this many 503 responses for the
	// identifier before serving the configured response.
	FailuresBeforeSuccess int
}

// MockCarrier is a configurable mock carrier tracking API for testing.
// Requests are matched on the trackingNumber query parameter.
type MockCarrier struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]*MockResponse
	failures  map[string]int

	// RequestCount is the total number of requests served.
	RequestCount int

	// RequestsByID counts requests per identifier.
	RequestsByID map[string]int

	// LastAPIKey is the DHL-API-Key header of the most recent request.
	LastAPIKey string
}

// NewMockCarrier creates a running mock carrier server.
func NewMockCarrier() *MockCarrier {
	mock := &MockCarrier{
		responses:    make(map[string]*MockResponse),
		failures:     make(map[string]int),
		RequestsByID: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the mock server URL.
func (m *MockCarrier) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockCarrier) Close() {
	m.server.Close()
}

// Reset clears all tracking counters and configured responses.
func (m *MockCarrier) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string]*MockResponse)
	m.failures = make(map[string]int)
	m.RequestsByID = make(map[string]int)
	m.RequestCount = 0
	m.LastAPIKey = ""
}

// SetResponse configures the response for an identifier.
func (m *MockCarrier) SetResponse(identifier string, resp MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := resp
	m.responses[identifier] = &r
	m.failures[identifier] = resp.FailuresBeforeSuccess
}

// GetRequestCount returns the total number of requests served.
func (m *MockCarrier) GetRequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// GetRequestCountFor returns the number of requests for one identifier.
func (m *MockCarrier) GetRequestCountFor(identifier string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestsByID[identifier]
}

func (m *MockCarrier) handle(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("trackingNumber")

	m.mu.Lock()
	m.RequestCount++
	m.RequestsByID[identifier]++
	m.LastAPIKey = r.Header.Get("DHL-API-Key")

	resp := m.responses[identifier]
	var serveFailure bool
	if resp != nil && m.failures[identifier] > 0 {
		m.failures[identifier]--
		serveFailure = true
	}
	m.mu.Unlock()

	if resp == nil {
		m.defaultHandler(w, identifier)
		return
	}

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	if serveFailure {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"detail": "temporarily unavailable"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		fmt.Fprint(w, resp.Body)
	}
}

// defaultHandler serves a delivered shipment for any identifier without a
// configured response.
func (m *MockCarrier) defaultHandler(w http.ResponseWriter, identifier string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ShipmentBody(identifier, "delivered", "Delivered"))
}

// ShipmentBody builds a minimal carrier tracking payload.
func ShipmentBody(identifier, statusCode, statusText string) string {
	return fmt.Sprintf(`{
		"shipments": [{
			"id": %q,
			"service": "express",
			"status": {"statusCode": %q, "status": %q},
			"origin": {"address": {"addressLocality": "Leipzig", "countryCode": "DE"}},
			"destination": {"address": {"addressLocality": "Lisbon", "countryCode": "PT"}},
			"estimatedTimeOfDelivery": "2024-03-05",
			"events": [
				{"timestamp": "2024-03-01T10:00:00", "statusCode": "transit", "description": "Processed at facility",
				 "location": {"address": {"addressLocality": "Leipzig", "countryCode": "DE"}}}
			],
			"details": {"pieceIds": ["JD0001", "JD0002"]}
		}]
	}`, identifier, statusCode, statusText)
}

// NotFoundBody is the carrier payload for an unknown tracking number.
const NotFoundBody = `{"detail": "No shipment with given tracking number found."}`
