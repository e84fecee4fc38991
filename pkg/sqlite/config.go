package sqlite

import "time"

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds SQLite connection configuration.
type ClientConfig struct {
	Path        string
	BusyTimeout time.Duration
	JournalMode string
	ForeignKeys bool
}

// WithPath sets the database file path. ":memory:" opens a private in-memory database.
func WithPath(path string) ClientOption {
	return func(c *ClientConfig) {
		c.Path = path
	}
}

// WithBusyTimeout sets how long a locked database is retried.
func WithBusyTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.BusyTimeout = d
	}
}

// WithJournalMode sets the journal mode (WAL, DELETE, ...).
func WithJournalMode(mode string) ClientOption {
	return func(c *ClientConfig) {
		c.JournalMode = mode
	}
}
