package alert

import (
	"encoding/json"
	"fmt"
	"time"
)

// zeroEndsAt is the sentinel the upstream monitoring tool puts in endsAt
// while an alert has not resolved yet. It is a quirk of the sender, not a
// protocol feature, so it is normalized to an absent EndsAt here and never
// surfaced as a real timestamp.
const zeroEndsAt = "0001-01-01T00:00:00Z"

// rawAlert keeps every field as raw JSON so type mismatches can be reported
// with a precise detail string instead of a generic unmarshal error.
// Unknown fields are ignored for forward compatibility.
type rawAlert struct {
	Status      json.RawMessage `json:"status"`
	Labels      json.RawMessage `json:"labels"`
	Annotations json.RawMessage `json:"annotations"`
	StartsAt    json.RawMessage `json:"startsAt"`
	EndsAt      json.RawMessage `json:"endsAt"`
}

type rawPayload struct {
	Alerts []rawAlert `json:"alerts"`
}

// Validate parses and schema-checks an inbound webhook body.
//
// It returns ErrMalformedPayload when the body is not JSON, a *SchemaError
// when the shape is wrong, and otherwise a Batch that is never mutated
// again. Pure function over its input.
func Validate(raw []byte) (Batch, error) {
	if !json.Valid(raw) {
		return Batch{}, ErrMalformedPayload
	}

	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Batch{}, &SchemaError{Detail: "payload must be a JSON object with an alerts array"}
	}
	if len(p.Alerts) == 0 {
		return Batch{}, &SchemaError{Detail: "alerts must be a non-empty array"}
	}

	out := make([]Alert, 0, len(p.Alerts))
	for i, ra := range p.Alerts {
		a, err := validateAlert(i, ra)
		if err != nil {
			return Batch{}, err
		}
		out = append(out, a)
	}
	return Batch{Alerts: out}, nil
}

func validateAlert(i int, ra rawAlert) (Alert, error) {
	var a Alert

	if ra.Status == nil {
		return a, schemaf("alerts[%d]: missing status", i)
	}
	if err := json.Unmarshal(ra.Status, &a.Status); err != nil {
		return a, schemaf("alerts[%d]: status must be a string", i)
	}

	if ra.Labels == nil {
		return a, schemaf("alerts[%d]: missing labels", i)
	}
	if err := json.Unmarshal(ra.Labels, &a.Labels); err != nil {
		return a, schemaf("alerts[%d]: labels must be an object of strings", i)
	}

	if ra.Annotations == nil {
		return a, schemaf("alerts[%d]: missing annotations", i)
	}
	if err := json.Unmarshal(ra.Annotations, &a.Annotations); err != nil {
		return a, schemaf("alerts[%d]: annotations must be an object of strings", i)
	}

	if ra.StartsAt == nil {
		return a, schemaf("alerts[%d]: missing startsAt", i)
	}
	ts, err := parseTime(ra.StartsAt)
	if err != nil {
		return a, schemaf("alerts[%d]: startsAt is not a valid timestamp", i)
	}
	a.StartsAt = ts

	// endsAt is optional; JSON null counts as absent.
	if ra.EndsAt != nil && string(ra.EndsAt) != "null" {
		ts, err := parseTime(ra.EndsAt)
		if err != nil {
			return a, schemaf("alerts[%d]: endsAt is not a valid timestamp", i)
		}
		// The sentinel parses to the zero time, which is exactly the
		// "absent" representation used throughout this package.
		a.EndsAt = ts
	}

	return a, nil
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

func schemaf(format string, args ...any) error {
	return &SchemaError{Detail: fmt.Sprintf(format, args...)}
}
