// Package store persists tracking results keyed by identifier and owns the
// freshness rule that decides whether a stored record can stand in for a
// remote call.
package store

import (
	"time"
)

// Detail carries the structured remainder of a carrier response that the
// orchestrator stores but never interprets.
type Detail struct {
	// Service is the carrier product name.
	Service string `json:"service,omitempty"`

	// EstimatedDelivery is the carrier's delivery estimate, verbatim.
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`

	// Events are the most recent shipment events (capped at 5).
	Events []Event `json:"events,omitempty"`

	// Pieces are the piece IDs belonging to the shipment.
	Pieces []string `json:"pieces,omitempty"`
}

// Event is a single shipment movement event.
type Event struct {
	Timestamp   string `json:"timestamp,omitempty"`
	Location    string `json:"location,omitempty"`
	StatusCode  string `json:"status_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// TrackResult is the outcome of one tracking attempt for one identifier.
// The latest attempt is authoritative; Upsert replaces prior state.
type TrackResult struct {
	// Identifier is the tracking/waybill number (uniqueness key).
	Identifier string `json:"identifier"`

	// SideTag is the caller-supplied association (bin code), carried
	// through processing but never interpreted.
	SideTag string `json:"side_tag,omitempty"`

	// BatchID is the run that produced this attempt.
	BatchID string `json:"batch_id,omitempty"`

	StatusCode string `json:"status_code,omitempty"`
	StatusText string `json:"status_text,omitempty"`

	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`

	Detail *Detail `json:"detail,omitempty"`

	// Succeeded reports whether the attempt produced usable tracking data.
	Succeeded bool `json:"succeeded"`

	// ErrorReason explains a failed attempt.
	ErrorReason string `json:"error_reason,omitempty"`

	// CheckedAt is when the attempt completed.
	CheckedAt time.Time `json:"checked_at"`
}

// IsFresh reports whether the record is recent enough to reuse instead of
// issuing a remote call. This is the sole staleness rule in the system.
func (r *TrackResult) IsFresh(maxAge time.Duration) bool {
	if r == nil || r.CheckedAt.IsZero() {
		return false
	}
	return time.Since(r.CheckedAt) < maxAge
}

// Age returns how old the record is. Zero-valued CheckedAt reads as very old.
func (r *TrackResult) Age() time.Duration {
	if r.CheckedAt.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(r.CheckedAt)
}
