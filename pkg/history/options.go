package history

import (
	"regexp"
	"time"
)

const (
	defaultTable           = "action_executions"
	defaultListLimit       = 50
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
	defaultPingTimeout     = 5 * time.Second
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type config struct {
	table           string
	listLimit       int
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	pingTimeout     time.Duration
}

func defaultConfig() *config {
	return &config{
		table:           defaultTable,
		listLimit:       defaultListLimit,
		maxOpenConns:    defaultMaxOpenConns,
		maxIdleConns:    defaultMaxIdleConns,
		connMaxLifetime: defaultConnMaxLifetime,
		pingTimeout:     defaultPingTimeout,
	}
}

// Option configures a SQLStore.
type Option func(*config)

// WithTable overrides the table name. Only letters, digits and underscores
// are accepted.
func WithTable(name string) Option {
	return func(c *config) {
		c.table = name
	}
}

// WithListLimit sets the limit used when List is called without one.
func WithListLimit(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.listLimit = n
		}
	}
}

// WithMaxOpenConns caps open connections. In-memory sqlite databases need 1.
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxOpenConns = n
			c.maxIdleConns = min(c.maxIdleConns, n)
		}
	}
}

// WithConnMaxLifetime sets the maximum lifetime of pooled connections.
func WithConnMaxLifetime(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.connMaxLifetime = d
		}
	}
}

// WithPingTimeout bounds the connectivity check run by Open.
func WithPingTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pingTimeout = d
		}
	}
}
