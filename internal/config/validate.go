package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *IngestorConfig) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Username == "" {
		return errors.New("api.username is required")
	}
	if c.API.Password == "" {
		return errors.New("api.password is required")
	}
	if c.API.ClientID == "" {
		return errors.New("api.client_id is required")
	}
	if c.API.ClientSecret == "" {
		return errors.New("api.client_secret is required")
	}
	if c.API.PageSize < 1 {
		return errors.New("api.page_size must be >= 1")
	}
	if c.API.PageLimit < 1 {
		return errors.New("api.page_limit must be >= 1")
	}

	if err := c.Database.validate("database"); err != nil {
		return err
	}

	if c.Ingest.Delay < 0 {
		return errors.New("ingest.delay cannot be negative")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
