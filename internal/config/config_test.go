package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
api:
  base_url: https://funds.example.com/api/v1
  username: svc-ingest
  password: hunter2
  client_id: cid
  client_secret: csec
database:
  host: localhost
  port: 5432
  name: funds
  user: testuser
  password: testpass
ingest:
  schema: maravi
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "https://funds.example.com/api/v1" {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, "https://funds.example.com/api/v1")
	}
	if cfg.API.Username != "svc-ingest" {
		t.Errorf("API.Username = %q, want %q", cfg.API.Username, "svc-ingest")
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("Database.Host = %q, want %q", cfg.Database.Host, "localhost")
	}
	if cfg.Ingest.Schema != "maravi" {
		t.Errorf("Ingest.Schema = %q, want %q", cfg.Ingest.Schema, "maravi")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_API_PASSWORD", "secret123")

	yaml := `
api:
  base_url: https://funds.example.com/api/v1
  username: svc-ingest
  password: ${TEST_API_PASSWORD}
  client_id: cid
  client_secret: csec
database:
  host: localhost
  name: funds
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Password != "secret123" {
		t.Errorf("API.Password = %q, want %q", cfg.API.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
api:
  base_url: https://funds.example.com/api/v1
  username: svc-ingest
  password: hunter2
  client_id: cid
  client_secret: csec
database:
  host: localhost
  name: funds
  user: testuser
  password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.API.PageSize != DefaultPageSize {
		t.Errorf("API.PageSize = %d, want default %d", cfg.API.PageSize, DefaultPageSize)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Database.MaxConns != DefaultMaxConns {
		t.Errorf("Database.MaxConns = %d, want default %d", cfg.Database.MaxConns, DefaultMaxConns)
	}
	if cfg.Ingest.Schema != DefaultSchema {
		t.Errorf("Ingest.Schema = %q, want default %q", cfg.Ingest.Schema, DefaultSchema)
	}
	if cfg.Ingest.Delay != DefaultDelay {
		t.Errorf("Ingest.Delay = %v, want default %v", cfg.Ingest.Delay, DefaultDelay)
	}
}

func TestValidate(t *testing.T) {
	valid := func() IngestorConfig {
		return IngestorConfig{
			API: APIConfig{
				BaseURL:      "https://funds.example.com/api/v1",
				Username:     "svc-ingest",
				Password:     "hunter2",
				ClientID:     "cid",
				ClientSecret: "csec",
				PageSize:     1000,
				PageLimit:    100,
			},
			Database: DBConfig{
				Host: "localhost", Name: "funds", User: "user", Password: "pass",
				MaxConns: 10, MinConns: 2,
			},
			Ingest: IngestConfig{Schema: "fund_base", Delay: time.Second},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*IngestorConfig)
		wantErr string
	}{
		{
			name:    "missing base url",
			mutate:  func(c *IngestorConfig) { c.API.BaseURL = "" },
			wantErr: "api.base_url is required",
		},
		{
			name:    "missing username",
			mutate:  func(c *IngestorConfig) { c.API.Username = "" },
			wantErr: "api.username is required",
		},
		{
			name:    "missing client secret",
			mutate:  func(c *IngestorConfig) { c.API.ClientSecret = "" },
			wantErr: "api.client_secret is required",
		},
		{
			name:    "missing database host",
			mutate:  func(c *IngestorConfig) { c.Database.Host = "" },
			wantErr: "database.host is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *IngestorConfig) { c.Database.MinConns = 20 },
			wantErr: "database.min_conns (20) cannot exceed max_conns (10)",
		},
		{
			name:    "negative delay",
			mutate:  func(c *IngestorConfig) { c.Ingest.Delay = -time.Second },
			wantErr: "ingest.delay cannot be negative",
		},
		{
			name:    "valid config",
			mutate:  func(c *IngestorConfig) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
