package config

import (
	"time"

	"github.com/heartmarshall/curation-backend/internal/domain"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Store      StoreConfig      `yaml:"store"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Update     UpdateConfig     `yaml:"update"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	CORS       CORSConfig       `yaml:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins   string `yaml:"allowed_origins"   env:"CORS_ALLOWED_ORIGINS"   env-default:"*"`
	AllowedMethods   string `yaml:"allowed_methods"   env:"CORS_ALLOWED_METHODS"   env-default:"GET,POST,PATCH,OPTIONS"`
	AllowedHeaders   string `yaml:"allowed_headers"   env:"CORS_ALLOWED_HEADERS"   env-default:"Authorization,Content-Type,If-Match"`
	AllowCredentials bool   `yaml:"allow_credentials" env:"CORS_ALLOW_CREDENTIALS" env-default:"true"`
	MaxAge           int    `yaml:"max_age"           env:"CORS_MAX_AGE"           env-default:"86400"`
	// ExposedHeaders lets browsers read the version and request id on responses.
	ExposedHeaders string `yaml:"exposed_headers" env:"CORS_EXPOSED_HEADERS" env-default:"ETag,X-Request-Id,Retry-After"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host               string        `yaml:"host"                  env:"SERVER_HOST"                  env-default:"0.0.0.0"`
	Port               int           `yaml:"port"                  env:"SERVER_PORT"                  env-default:"8080"`
	ReadTimeout        time.Duration `yaml:"read_timeout"          env:"SERVER_READ_TIMEOUT"          env-default:"10s"`
	WriteTimeout       time.Duration `yaml:"write_timeout"         env:"SERVER_WRITE_TIMEOUT"         env-default:"30s"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"          env:"SERVER_IDLE_TIMEOUT"          env-default:"60s"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"      env:"SERVER_SHUTDOWN_TIMEOUT"      env-default:"10s"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute" env:"SERVER_RATE_LIMIT_PER_MINUTE" env-default:"600"`
	MetricsEnabled     bool          `yaml:"metrics_enabled"       env:"SERVER_METRICS_ENABLED"       env-default:"true"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"25"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"5"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
}

// NATSConfig holds JetStream key-value settings for the natskv backend.
type NATSConfig struct {
	URL            string        `yaml:"url"             env:"NATS_URL"             env-default:"nats://127.0.0.1:4222"`
	ItemsBucket    string        `yaml:"items_bucket"    env:"NATS_ITEMS_BUCKET"    env-default:"work_items"`
	IndexBucket    string        `yaml:"index_bucket"    env:"NATS_INDEX_BUCKET"    env-default:"assignments"`
	Replicas       int           `yaml:"replicas"        env:"NATS_REPLICAS"        env-default:"1"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"NATS_CONNECT_TIMEOUT" env-default:"5s"`
}

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendNATSKV   = "natskv"
	BackendMemory   = "memory"
)

// StoreConfig selects the work-item backend and the read retry budget.
type StoreConfig struct {
	Backend        string        `yaml:"backend"          env:"STORE_BACKEND"          env-default:"postgres"`
	ReadAttempts   int           `yaml:"read_attempts"    env:"STORE_READ_ATTEMPTS"    env-default:"3"`
	ReadRetryDelay time.Duration `yaml:"read_retry_delay" env:"STORE_READ_RETRY_DELAY" env-default:"50ms"`
	CallTimeout    time.Duration `yaml:"call_timeout"     env:"STORE_CALL_TIMEOUT"     env-default:"5s"`
}

// AssignmentConfig tunes sampling and self-assignment.
type AssignmentConfig struct {
	OverFetchFactor int                `yaml:"over_fetch_factor" env:"ASSIGN_OVER_FETCH_FACTOR" env-default:"2"`
	MaxOverFetch    int                `yaml:"max_over_fetch"    env:"ASSIGN_MAX_OVER_FETCH"    env-default:"200"`
	RetryPasses     int                `yaml:"retry_passes"      env:"ASSIGN_RETRY_PASSES"      env-default:"1"`
	MaxBatch        int                `yaml:"max_batch"         env:"ASSIGN_MAX_BATCH"         env-default:"50"`
	GroupWeights    map[string]float64 `yaml:"group_weights"     env:"ASSIGN_GROUP_WEIGHTS"`
	StatsCacheTTL   time.Duration      `yaml:"stats_cache_ttl"   env:"ASSIGN_STATS_CACHE_TTL"   env-default:"15s"`
	StatsCacheSize  int                `yaml:"stats_cache_size"  env:"ASSIGN_STATS_CACHE_SIZE"  env-default:"16"`
}

// UpdateConfig holds update workflow settings.
type UpdateConfig struct {
	// RequireVersion selects strict mode: updates must carry If-Match.
	RequireVersion bool `yaml:"require_version" env:"UPDATE_REQUIRE_VERSION" env-default:"true"`
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"       env:"AUTH_JWT_SECRET"`
	JWTIssuer      string        `yaml:"jwt_issuer"       env:"AUTH_JWT_ISSUER"       env-default:"curation"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"AUTH_ACCESS_TOKEN_TTL" env-default:"15m"`
	JWKSURL        string        `yaml:"jwks_url"         env:"AUTH_JWKS_URL"`
	JWKSRefresh    time.Duration `yaml:"jwks_refresh"     env:"AUTH_JWKS_REFRESH"     env-default:"15m"`

	RolePermissions []RolePermissionConfig `yaml:"role_permissions"`
}

// RolePermissionConfig grants one role its fields and privileges.
// When no entries are configured the built-in defaults apply.
type RolePermissionConfig struct {
	Role            string   `yaml:"role"`
	Fields          []string `yaml:"fields"`
	Force           bool     `yaml:"force"`
	Restore         bool     `yaml:"restore"`
	BypassOwnership bool     `yaml:"bypass_ownership"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// UsesJWKS reports whether tokens are verified against a remote key set.
func (c AuthConfig) UsesJWKS() bool {
	return c.JWKSURL != ""
}

// Policy converts the assignment, update and auth sections into the
// immutable policy consumed by the services. Call after Validate.
func (c *Config) Policy() domain.Policy {
	params := domain.PolicyParams{
		OverFetchFactor: c.Assignment.OverFetchFactor,
		MaxOverFetch:    c.Assignment.MaxOverFetch,
		RetryPasses:     c.Assignment.RetryPasses,
		RequireVersion:  c.Update.RequireVersion,
	}

	if len(c.Auth.RolePermissions) == 0 {
		params.Permissions = domain.DefaultPermissions()
		return domain.NewPolicy(params)
	}

	params.Permissions = make(map[domain.Role]domain.Permission, len(c.Auth.RolePermissions))
	for _, rp := range c.Auth.RolePermissions {
		mask := domain.NewFieldMask()
		for _, name := range rp.Fields {
			if f, ok := domain.ParseField(name); ok {
				mask[f] = struct{}{}
			}
		}
		params.Permissions[domain.Role(rp.Role)] = domain.Permission{
			Fields:          mask,
			Force:           rp.Force,
			Restore:         rp.Restore,
			BypassOwnership: rp.BypassOwnership,
		}
	}
	return domain.NewPolicy(params)
}
