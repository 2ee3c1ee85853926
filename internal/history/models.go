package history

import "time"

// Deployment statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record is one row of the deployment ledger.
type Record struct {
	ID              int64
	Environment     string
	Revision        string
	Previous        string // Revision that was live before, if any
	Action          string // deployed, up-to-date, removed, ...
	Status          string
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	ErrorMessage    string
}
