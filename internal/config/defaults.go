package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAPITimeout = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultPageSize   = 1000
	DefaultPageLimit  = 100
	DefaultDBPort     = 5432
	DefaultDBSSLMode  = "prefer"
	DefaultMaxConns   = 10
	DefaultMinConns   = 2
	DefaultSchema     = "fund_base"
	DefaultDelay      = 1 * time.Second
)

func (c *IngestorConfig) applyDefaults() {
	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}
	if c.API.PageSize == 0 {
		c.API.PageSize = DefaultPageSize
	}
	if c.API.PageLimit == 0 {
		c.API.PageLimit = DefaultPageLimit
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Ingest defaults
	if c.Ingest.Schema == "" {
		c.Ingest.Schema = DefaultSchema
	}
	if c.Ingest.Delay == 0 {
		c.Ingest.Delay = DefaultDelay
	}
}
