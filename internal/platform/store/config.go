package store

import "time"

// Config configures the embedded sqlite database
type Config struct {
	// Path is the database file path, e.g. "./pinakes.db"
	Path string

	// BusyTimeoutMS is passed as the sqlite busy_timeout pragma
	BusyTimeoutMS int

	// LogSQL enables per-query tracing through the configured logger
	LogSQL      bool
	SlowQueryMs int

	// VecEnabled registers the sqlite-vec extension on every connection
	VecEnabled bool

	// ConnectRetries/PingTimeout guard the initial open against a locked file
	ConnectRetries int
	PingTimeout    time.Duration
}
