package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverMongo    = "mongo"
	StoreDriverArango   = "arango"
	StoreDriverPostgres = "postgres"
)

// Tenancy policies
const (
	EmailScopeShared = "shared"
	EmailScopeUnique = "unique"

	ProvisioningBestEffort = "best_effort"
	ProvisioningStrict     = "strict"
)

// MinJWTSecretLength is enforced in production
const MinJWTSecretLength = 32

// MaxCopyBatchSize bounds TENANT_COPY_BATCH_SIZE. The Postgres store binds two
// parameters per document and a statement takes at most 65535.
const MaxCopyBatchSize = 10000

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Auth          AuthConfig
	Tenancy       TenancyConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// StoreConfig selects and configures the document store backend
type StoreConfig struct {
	Driver string
	// OperationTimeout bounds every store call made on behalf of a request
	OperationTimeout time.Duration
	// ConnectMaxElapsed bounds the startup connection retry; zero retries forever
	ConnectMaxElapsed time.Duration
	Mongo             MongoConfig
	Arango            ArangoConfig
	Postgres          DatabaseConfig
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI      string
	Database string
}

// ArangoConfig holds ArangoDB connection settings
type ArangoConfig struct {
	URL                string
	User               string
	Password           string
	Database           string
	InsecureSkipVerify bool
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuthConfig holds admin credential and token settings
type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	TokenTTL   time.Duration
	BcryptCost int
}

// TenancyConfig holds organization lifecycle policies
type TenancyConfig struct {
	CollectionPrefix          string
	MetadataCollection        string
	AuditCollection           string
	CopyBatchSize             int
	EmailScope                string
	ProvisioningPolicy        string
	RejectEmptyNormalizedName bool
}

// RateLimitConfig holds the login attempt limiter settings.
// Redis is used when RedisAddr is set, otherwise an in-process limiter.
type RateLimitConfig struct {
	Enabled       bool
	Attempts      int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// AuditConfig holds the async audit writer settings
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Store: StoreConfig{
			Driver:            strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMongo)),
			OperationTimeout:  getEnvAsDuration("STORE_OPERATION_TIMEOUT", 10*time.Second),
			ConnectMaxElapsed: getEnvAsDuration("STORE_CONNECT_MAX_ELAPSED", 2*time.Minute),
			Mongo: MongoConfig{
				URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
				Database: getEnv("MASTER_DB", "org_master_db"),
			},
			Arango: ArangoConfig{
				URL:                getEnv("ARANGO_URL", "http://localhost:8529"),
				User:               getEnv("ARANGO_USER", "root"),
				Password:           getEnv("ARANGO_PASS", ""),
				Database:           getEnv("ARANGO_DB", "org_master_db"),
				InsecureSkipVerify: getEnvAsBool("ARANGO_INSECURE_SKIP_VERIFY", false),
			},
			Postgres: loadDatabaseConfig(),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", "org-control-plane"),
			TokenTTL:   getEnvAsDuration("JWT_TTL", time.Hour),
			BcryptCost: getEnvAsInt("BCRYPT_COST", 10),
		},
		Tenancy: TenancyConfig{
			CollectionPrefix:          getEnv("TENANT_COLLECTION_PREFIX", "org_"),
			MetadataCollection:        getEnv("TENANT_METADATA_COLLECTION", "organizations"),
			AuditCollection:           getEnv("TENANT_AUDIT_COLLECTION", "audit_logs"),
			CopyBatchSize:             getEnvAsInt("TENANT_COPY_BATCH_SIZE", 500),
			EmailScope:                strings.ToLower(getEnv("TENANT_ADMIN_EMAIL_SCOPE", EmailScopeShared)),
			ProvisioningPolicy:        strings.ToLower(getEnv("TENANT_PROVISIONING_POLICY", ProvisioningBestEffort)),
			RejectEmptyNormalizedName: getEnvAsBool("TENANT_REJECT_EMPTY_NAME", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getEnvAsBool("LOGIN_RATE_LIMIT_ENABLED", true),
			Attempts:      getEnvAsInt("LOGIN_RATE_LIMIT_ATTEMPTS", 10),
			Window:        getEnvAsDuration("LOGIN_RATE_LIMIT_WINDOW", time.Minute),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvAsInt("REDIS_DB", 0),
		},
		Audit: AuditConfig{
			Enabled:     getEnvAsBool("AUDIT_ENABLED", true),
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKER_COUNT", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverMongo:
		if c.Store.Mongo.URI == "" || c.Store.Mongo.Database == "" {
			return fmt.Errorf("mongo store requires MONGO_URI and MASTER_DB")
		}
	case StoreDriverArango:
		if c.Store.Arango.URL == "" || c.Store.Arango.Database == "" {
			return fmt.Errorf("arango store requires ARANGO_URL and ARANGO_DB")
		}
	case StoreDriverPostgres:
		if c.Store.Postgres.ConnectionString == "" && c.Store.Postgres.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Store.Postgres.ConnectionString == "" {
			if c.Store.Postgres.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Store.Postgres.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < MinJWTSecretLength {
			return fmt.Errorf("JWT_SECRET of at least %d bytes is required in production", MinJWTSecretLength)
		}
		if c.Store.Driver == StoreDriverMemory {
			return fmt.Errorf("memory store is not allowed in production")
		}
	}

	if c.Tenancy.CopyBatchSize <= 0 {
		return fmt.Errorf("copy batch size must be positive")
	}
	if c.Tenancy.CopyBatchSize > MaxCopyBatchSize {
		return fmt.Errorf("copy batch size must be at most %d, got %d", MaxCopyBatchSize, c.Tenancy.CopyBatchSize)
	}
	if c.Tenancy.MetadataCollection == "" {
		return fmt.Errorf("metadata collection name is required")
	}
	switch c.Tenancy.EmailScope {
	case EmailScopeShared, EmailScopeUnique:
	default:
		return fmt.Errorf("admin email scope must be %q or %q", EmailScopeShared, EmailScopeUnique)
	}
	switch c.Tenancy.ProvisioningPolicy {
	case ProvisioningBestEffort, ProvisioningStrict:
	default:
		return fmt.Errorf("provisioning policy must be %q or %q", ProvisioningBestEffort, ProvisioningStrict)
	}

	if c.RateLimit.Enabled && (c.RateLimit.Attempts <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("login rate limit needs positive attempts and window")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// LogString returns the Mongo URI without credentials
func (c *MongoConfig) LogString() string {
	u, err := url.Parse(c.URI)
	if err != nil {
		return "uri=<unparseable> database=" + c.Database
	}
	u.User = nil
	return fmt.Sprintf("uri=%s database=%s", u.String(), c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "dev"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "org_master_db"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
