// Package validate shape-checks and normalizes raw queue entries into
// model.Record values. It is pure — no I/O — so it can run identically
// on the drain path and the backup-replay path.
package validate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleetmetra/geoingest/internal/model"
)

// Rejected describes why a raw entry was dropped from its batch.
// Rejection never fails the batch — it is counted and the record is
// simply left out.
type Rejected struct {
	Reason string
}

func (r Rejected) Error() string { return r.Reason }

type gpsWire struct {
	DeviceID string  `json:"deviceId"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Timestamp string `json:"timestamp"`
}

type mobileWire struct {
	UserID    string  `json:"userId"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp string  `json:"timestamp"`
	Name      string  `json:"name"`
	Email     string  `json:"email"`
}

// Validate parses one raw queue entry for the given family, checks the
// invariants, and returns a normalized Record with any
// fields the warehouse schema does not expect stripped. A malformed or
// out-of-range entry returns a Rejected error, never a generic one —
// callers should type-assert or errors.As against it to distinguish
// "drop this record" from an unexpected parse failure worth logging
// louder.
func Validate(family model.Family, raw []byte) (model.Record, error) {
	switch family {
	case model.FamilyGPS:
		return validateGPS(raw)
	case model.FamilyMobile:
		return validateMobile(raw)
	default:
		return model.Record{}, Rejected{Reason: fmt.Sprintf("unknown family %q", family)}
	}
}

func validateGPS(raw []byte) (model.Record, error) {
	var w gpsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Record{}, Rejected{Reason: "invalid JSON: " + err.Error()}
	}
	if w.DeviceID == "" {
		return model.Record{}, Rejected{Reason: "deviceId is empty"}
	}
	ts, err := parseLatLngTime(w.Lat, w.Lng, w.Timestamp)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{
		Family:    model.FamilyGPS,
		ID:        w.DeviceID,
		Lat:       w.Lat,
		Lng:       w.Lng,
		Timestamp: ts,
	}, nil
}

func validateMobile(raw []byte) (model.Record, error) {
	var w mobileWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Record{}, Rejected{Reason: "invalid JSON: " + err.Error()}
	}
	if w.UserID == "" {
		return model.Record{}, Rejected{Reason: "userId is empty"}
	}
	ts, err := parseLatLngTime(w.Lat, w.Lng, w.Timestamp)
	if err != nil {
		return model.Record{}, err
	}
	return model.Record{
		Family:    model.FamilyMobile,
		ID:        w.UserID,
		Lat:       w.Lat,
		Lng:       w.Lng,
		Timestamp: ts,
		Name:      w.Name,
		Email:     w.Email,
	}, nil
}

// parseLatLngTime enforces the invariants common to both families:
// lat in [-90, 90], lng in [-180, 180], timestamp parseable as UTC.
func parseLatLngTime(lat, lng float64, timestamp string) (time.Time, error) {
	if lat < -90 || lat > 90 {
		return time.Time{}, Rejected{Reason: fmt.Sprintf("lat %v out of range [-90, 90]", lat)}
	}
	if lng < -180 || lng > 180 {
		return time.Time{}, Rejected{Reason: fmt.Sprintf("lng %v out of range [-180, 180]", lng)}
	}
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return time.Time{}, Rejected{Reason: "timestamp not parseable as ISO-8601 UTC: " + err.Error()}
	}
	return ts.UTC(), nil
}
