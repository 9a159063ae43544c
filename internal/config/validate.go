package config

import (
	"fmt"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if err := c.Store.validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	switch c.Store.Backend {
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the %s backend", BackendPostgres)
		}
	case BackendNATSKV:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required for the %s backend", BackendNATSKV)
		}
		if c.NATS.ItemsBucket == "" || c.NATS.IndexBucket == "" {
			return fmt.Errorf("nats.items_bucket and nats.index_bucket are required")
		}
	}

	if err := c.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	if err := c.Assignment.validate(); err != nil {
		return fmt.Errorf("assignment: %w", err)
	}

	return nil
}

func (s *StoreConfig) validate() error {
	switch s.Backend {
	case BackendPostgres, BackendNATSKV, BackendMemory:
	default:
		return fmt.Errorf("backend must be one of %s, %s, %s (got %q)", BackendPostgres, BackendNATSKV, BackendMemory, s.Backend)
	}
	if s.ReadAttempts < 1 {
		return fmt.Errorf("read_attempts must be >= 1 (got %d)", s.ReadAttempts)
	}
	if s.ReadRetryDelay < 0 {
		return fmt.Errorf("read_retry_delay must be >= 0 (got %s)", s.ReadRetryDelay)
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if !a.UsesJWKS() && len(a.JWTSecret) < 32 {
		return fmt.Errorf("jwt_secret must be at least 32 characters (got %d)", len(a.JWTSecret))
	}
	for i, rp := range a.RolePermissions {
		if !domain.Role(rp.Role).IsValid() {
			return fmt.Errorf("role_permissions[%d]: unknown role %q", i, rp.Role)
		}
		for _, f := range rp.Fields {
			if _, ok := domain.ParseField(f); !ok {
				return fmt.Errorf("role_permissions[%d]: unknown field %q", i, f)
			}
		}
	}
	return nil
}

func (a *AssignmentConfig) validate() error {
	if a.OverFetchFactor < 1 {
		return fmt.Errorf("over_fetch_factor must be >= 1 (got %d)", a.OverFetchFactor)
	}
	if a.MaxOverFetch < 1 {
		return fmt.Errorf("max_over_fetch must be >= 1 (got %d)", a.MaxOverFetch)
	}
	if a.RetryPasses < 0 {
		return fmt.Errorf("retry_passes must be >= 0 (got %d)", a.RetryPasses)
	}
	if a.MaxBatch < 1 {
		return fmt.Errorf("max_batch must be >= 1 (got %d)", a.MaxBatch)
	}
	for group, w := range a.GroupWeights {
		if w < 0 {
			return fmt.Errorf("group_weights[%s] must be >= 0 (got %v)", group, w)
		}
	}
	return nil
}
