// Package model holds the data types shared across the drain-and-ship
// pipeline: records, batches, blobs, load jobs, and backup entries.
package model

import "time"

// Family identifies one of the two record kinds the pipeline processes.
// Each family owns its own queue key, blob prefix, and warehouse table.
type Family string

const (
	FamilyGPS    Family = "gps"
	FamilyMobile Family = "mobile"
)

// String implements fmt.Stringer so Family reads naturally in log fields.
func (f Family) String() string { return string(f) }

// Valid reports whether f is one of the known families.
func (f Family) Valid() bool {
	return f == FamilyGPS || f == FamilyMobile
}

// Record is a single normalized location event. GPS and mobile records
// share this shape; Name and Email are populated only for mobile
// records, and ID holds deviceId for GPS or userId for mobile.
//
// Normalization strips any metadata fields a producer attached beyond
// the ones below — the core never inspects or forwards them, so there
// is nothing gained by carrying them through the pipeline.
type Record struct {
	Family    Family    `json:"family"`
	ID        string    `json:"id"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name,omitempty"` // mobile only
	Email     string    `json:"email,omitempty"` // mobile only
}
