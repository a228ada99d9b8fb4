package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all service configuration
type Config struct {
	Service     ServiceConfig     `yaml:"service"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Terminology TerminologyConfig `yaml:"terminology"`
	Integrity   IntegrityConfig   `yaml:"integrity"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Database    string        `yaml:"database"`
	User        string        `yaml:"user"`
	Password    string        `yaml:"password"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CacheConfig holds report cache settings
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Type       string        `yaml:"type"` // "memory" or "redis"
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof   bool `yaml:"enable_pprof"`
	PprofPort     int  `yaml:"pprof_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// TerminologyConfig wires the well-known concept identifiers.
// These are data values, not language constants; deployments running
// against a non-International edition can override them.
type TerminologyConfig struct {
	InferredCharacteristicTypeID int64 `yaml:"inferred_characteristic_type_id"`
	StatedCharacteristicTypeID   int64 `yaml:"stated_characteristic_type_id"`
	OWLAxiomRefsetID             int64 `yaml:"owl_axiom_refset_id"`
	RootConceptID                int64 `yaml:"root_concept_id"`
}

// IntegrityConfig holds integrity-check settings
type IntegrityConfig struct {
	// HookSkipExpression is an optional CEL expression over {path, rebase}.
	// When it evaluates to true the pre-commit integrity hook is skipped.
	HookSkipExpression string `yaml:"hook_skip_expression"`
}

// Load loads configuration from environment variables, with an optional
// YAML file overlay when CONFIG_FILE is set
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "termserver"),
			User:        getEnv("POSTGRES_USER", "termserver"),
			Password:    getEnv("POSTGRES_PASSWORD", "termserver"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 50),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 10),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("CACHE_ENABLED", true),
			Type:       getEnv("CACHE_TYPE", "memory"),
			DefaultTTL: getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
		},
		Telemetry: TelemetryConfig{
			EnablePprof:   getEnvBool("ENABLE_PPROF", true),
			PprofPort:     getEnvInt("PPROF_PORT", 6060),
			EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		},
		Terminology: TerminologyConfig{
			InferredCharacteristicTypeID: getEnvInt64("INFERRED_CHARACTERISTIC_TYPE_ID", 900000000000011006),
			StatedCharacteristicTypeID:   getEnvInt64("STATED_CHARACTERISTIC_TYPE_ID", 900000000000010007),
			OWLAxiomRefsetID:             getEnvInt64("OWL_AXIOM_REFSET_ID", 733073007),
			RootConceptID:                getEnvInt64("ROOT_CONCEPT_ID", 138875005),
		},
		Integrity: IntegrityConfig{
			HookSkipExpression: getEnv("INTEGRITY_HOOK_SKIP_EXPRESSION", ""),
		},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, cfg.Validate()
}

// mergeFile overlays values from a YAML config file
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Terminology.InferredCharacteristicTypeID == 0 ||
		c.Terminology.OWLAxiomRefsetID == 0 ||
		c.Terminology.RootConceptID == 0 {
		return fmt.Errorf("terminology identifiers must be non-zero")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
