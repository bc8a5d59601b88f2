// Package alert holds the inbound alert data model: payload validation,
// normalization, and message rendering.
package alert

import (
	"errors"
	"time"
)

// ErrMalformedPayload reports a body that is not valid JSON at all.
var ErrMalformedPayload = errors.New("payload is not valid JSON")

// SchemaError reports a payload that parsed as JSON but does not match the
// webhook schema. Detail is safe to show to the sender.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string { return "invalid schema: " + e.Detail }

// Alert is one monitoring condition transition reported by the upstream
// tool. Immutable once validated.
type Alert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
	// EndsAt is the zero time while the alert is still firing.
	EndsAt time.Time `json:"endsAt,omitzero"`
}

// Resolved reports whether the alert carries a real resolution time.
func (a Alert) Resolved() bool { return !a.EndsAt.IsZero() }

// Batch is the ordered, non-empty set of alerts delivered together in one
// webhook call. Opaque to the queue beyond its alert list.
type Batch struct {
	Alerts []Alert `json:"alerts"`
}
