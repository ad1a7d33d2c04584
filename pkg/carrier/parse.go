package carrier

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/trackops/waybill-tracker/pkg/store"
)

// maxStoredEvents caps how many shipment events are kept per record.
const maxStoredEvents = 5

// trackingResponse mirrors the carrier's tracking payload.
type trackingResponse struct {
	Shipments []shipment `json:"shipments"`
}

type shipment struct {
	Status                  shipmentStatus  `json:"status"`
	Origin                  location        `json:"origin"`
	Destination             location        `json:"destination"`
	Service                 string          `json:"service"`
	EstimatedTimeOfDelivery string          `json:"estimatedTimeOfDelivery"`
	Events                  []shipmentEvent `json:"events"`
	Details                 shipmentDetails `json:"details"`
}

type shipmentStatus struct {
	StatusCode string `json:"statusCode"`
	Status     string `json:"status"`
}

type location struct {
	Address struct {
		AddressLocality string `json:"addressLocality"`
		CountryCode     string `json:"countryCode"`
	} `json:"address"`
}

type shipmentEvent struct {
	Timestamp   string   `json:"timestamp"`
	Location    location `json:"location"`
	StatusCode  string   `json:"statusCode"`
	Description string   `json:"description"`
}

type shipmentDetails struct {
	PieceIDs []string `json:"pieceIds"`
}

// parseTrackingResponse decodes a 200 response body into a TrackResult.
// Unusable payloads resolve to a failed result, never an error.
func parseTrackingResponse(body io.Reader, identifier, sideTag string) *store.TrackResult {
	result := &store.TrackResult{
		Identifier: identifier,
		SideTag:    sideTag,
		CheckedAt:  time.Now().UTC(),
	}

	var payload trackingResponse
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		result.ErrorReason = fmt.Sprintf("error parsing response: %v", err)
		return result
	}

	if len(payload.Shipments) == 0 {
		result.ErrorReason = "no shipment data found"
		return result
	}

	sh := payload.Shipments[0]

	result.StatusCode = sh.Status.StatusCode
	if result.StatusCode == "" {
		result.StatusCode = "unknown"
	}
	result.StatusText = sh.Status.Status
	if result.StatusText == "" {
		result.StatusText = "Unknown"
	}

	result.Origin = formatLocation(sh.Origin)
	result.Destination = formatLocation(sh.Destination)

	events := sh.Events
	if len(events) > maxStoredEvents {
		events = events[:maxStoredEvents]
	}

	detail := &store.Detail{
		Service:           sh.Service,
		EstimatedDelivery: sh.EstimatedTimeOfDelivery,
		Pieces:            sh.Details.PieceIDs,
	}
	for _, ev := range events {
		detail.Events = append(detail.Events, store.Event{
			Timestamp:   ev.Timestamp,
			Location:    formatLocation(ev.Location),
			StatusCode:  ev.StatusCode,
			Description: ev.Description,
		})
	}
	result.Detail = detail

	result.Succeeded = true
	return result
}

// formatLocation renders a carrier location as "City, CC".
func formatLocation(loc location) string {
	city := loc.Address.AddressLocality
	country := loc.Address.CountryCode

	switch {
	case city != "" && country != "":
		return city + ", " + country
	case city != "":
		return city
	case country != "":
		return country
	default:
		return "Unknown"
	}
}
