// Package constants centralizes tunable defaults for the docforge client.
package constants

import "time"

// Polling defaults
const (
	// DefaultPollInterval is how often the scheduler reconciles the task
	// registry against the server. One tick must finish before the next
	// starts; ticks that would overlap are skipped.
	DefaultPollInterval = 3 * time.Second

	// MinPollInterval guards against hammering the status endpoint.
	MinPollInterval = 500 * time.Millisecond
)

// Upload defaults
const (
	// DefaultMaxConcurrentUploads caps simultaneous uploads in one batch.
	DefaultMaxConcurrentUploads = 10

	// MinMaxConcurrent / MaxMaxConcurrent bound the --max-concurrent flag.
	MinMaxConcurrent = 1
	MaxMaxConcurrent = 32
)

// DefaultSubject is sent with AI conversions when the user gives none.
// Mirrors the server-side default.
const DefaultSubject = "General"

// Event bus buffer sizes
const (
	// EventBusDefaultBuffer is the per-subscriber channel capacity.
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer caps caller-requested buffer sizes.
	EventBusMaxBuffer = 4096
)

// HTTP defaults
const (
	// DefaultRequestTimeout bounds status and download requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRetryMax bounds transport retries for status and download
	// requests. Upload bodies stream and are never replayed.
	DefaultRetryMax = 3
)
