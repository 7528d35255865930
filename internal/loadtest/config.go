// Package loadtest drives a running gubs server with concurrent players and
// checks that the economy conserved every gub.
package loadtest

import (
	"errors"
	"time"
)

// Defaults.
const (
	DefaultBaseURL   = "http://localhost:9080"
	DefaultUIDHeader = "X-Gubs-UID"
	DefaultUsers     = 20
	DefaultCalls     = 50
	DefaultDelta     = 7
	DefaultFund      = 10_000
	DefaultItem      = "passiveMaker"
	DefaultTimeout   = 30 * time.Second
)

// Sentinel errors.
var (
	ErrUnhealthy = errors.New("service unhealthy")
	ErrMismatch  = errors.New("ledger mismatch")
	ErrNoAdmin   = errors.New("admin uid required")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	UIDHeader string        // Identity header trusted by the service
	AdminUID  string        // Admin used to fund players
	Users     int           // Number of concurrent players
	Calls     int           // Calls per player
	Delta     int64         // Clicks per sync
	Fund      int64         // Starting balance for purchase runs
	Item      string        // Item raced by purchase runs
	Workers   int           // Concurrent requests in flight; 0 means Users
	Timeout   time.Duration // HTTP request timeout
	Verbose   bool          // Log every mismatch and rejection
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	if out.UIDHeader == "" {
		out.UIDHeader = DefaultUIDHeader
	}
	if out.Users <= 0 {
		out.Users = DefaultUsers
	}
	if out.Calls <= 0 {
		out.Calls = DefaultCalls
	}
	if out.Delta <= 0 {
		out.Delta = DefaultDelta
	}
	if out.Fund <= 0 {
		out.Fund = DefaultFund
	}
	if out.Item == "" {
		out.Item = DefaultItem
	}
	if out.Workers <= 0 {
		out.Workers = out.Users
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return &out
}

// Stats holds run statistics.
type Stats struct {
	Users      int
	Calls      int64
	Succeeded  int64
	Rejected   int64 // aborted or failed-precondition, expected under contention
	Failed     int64 // transport errors and unexpected statuses
	Mismatches int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
}

// Player is the observed outcome for one load user.
type Player struct {
	UID       string
	Succeeded int64
	Spent     int64
	Score     int64
	Owned     int64
}
