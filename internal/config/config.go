package config

import "time"

// IngestorConfig is the root configuration for an ingestor instance.
type IngestorConfig struct {
	API      APIConfig    `yaml:"api"`
	Database DBConfig     `yaml:"database"`
	Ingest   IngestConfig `yaml:"ingest"`
}

// APIConfig holds the upstream fund administration API settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	ClientID     string        `yaml:"client_id"`     // Access gateway client id header
	ClientSecret string        `yaml:"client_secret"` // Access gateway client secret header
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	PageSize     int           `yaml:"page_size"`
	PageLimit    int           `yaml:"page_limit"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second, 0 disables pacing
}

// DBConfig holds the PostgreSQL connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// IngestConfig holds run behavior settings.
type IngestConfig struct {
	Schema string        `yaml:"schema"`
	Delay  time.Duration `yaml:"delay"` // pause between dates in a batch run
}
