package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security"`
	Identity      IdentityConfig      `mapstructure:"identity"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Permissions   PermissionsConfig   `mapstructure:"permissions"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	AccessTokenSecret    string        `mapstructure:"access_token_secret" validate:"required,min=32"`
	RefreshTokenSecret   string        `mapstructure:"refresh_token_secret" validate:"required,min=32"`
	AccessTokenDuration  time.Duration `mapstructure:"access_token_duration" validate:"required"`
	RefreshTokenDuration time.Duration `mapstructure:"refresh_token_duration" validate:"required"`
	BCryptCost           int           `mapstructure:"bcrypt_cost" validate:"required,min=4,max=15"`
}

// IdentityConfig selects the credential source once at startup.
type IdentityConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=local"`
}

type ExecutionConfig struct {
	ScriptsDir     string        `mapstructure:"scripts_dir" validate:"required"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" validate:"required"`
	MaxTimeout     time.Duration `mapstructure:"max_timeout" validate:"required"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes" validate:"min=0"`
	InheritEnv     []string      `mapstructure:"inherit_env"`
	ExposeStderr   bool          `mapstructure:"expose_stderr"`
}

type PermissionsConfig struct {
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
	CacheSize int           `mapstructure:"cache_size" validate:"min=0"`
}

type RateLimitConfig struct {
	ExecutePerMinute int `mapstructure:"execute_per_minute" validate:"min=0"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// DefaultConfig holds the values applied before file or environment overrides.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			AllowedOrigins:    "*",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      90 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Security: SecurityConfig{
			AccessTokenDuration:  15 * time.Minute,
			RefreshTokenDuration: 7 * 24 * time.Hour,
			BCryptCost:           12,
		},
		Identity: IdentityConfig{Provider: "local"},
		Execution: ExecutionConfig{
			ScriptsDir:     "./scripts",
			DefaultTimeout: 30 * time.Second,
			MaxTimeout:     5 * time.Minute,
			MaxOutputBytes: 1 << 20,
			InheritEnv:     []string{"PATH", "HOME", "LANG", "LC_ALL", "TZ", "TMPDIR"},
		},
		Permissions: PermissionsConfig{CacheSize: 256},
		RateLimit:   RateLimitConfig{ExecutePerMinute: 30},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
			Logging: LoggingConfig{Level: "info", Format: "text"},
		},
	}
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration purely from environment
// variables, used for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()

	cfg.Server.Port = getEnvAsInt("HTTP_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("HTTP_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.AllowedOrigins = getEnv("HTTP_ALLOWED_ORIGINS", cfg.Server.AllowedOrigins)

	cfg.Database.Driver = getEnv("DB_DRIVER", cfg.Database.Driver)
	cfg.Database.Source = getEnv("DB_SOURCE", cfg.Database.Source)
	cfg.Database.MaxOpenConns = getEnvAsInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvAsInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)

	cfg.Security.AccessTokenSecret = getEnv("JWT_ACCESS_SECRET", "")
	cfg.Security.RefreshTokenSecret = getEnv("JWT_REFRESH_SECRET", "")
	cfg.Security.AccessTokenDuration = getEnvAsDuration("JWT_ACCESS_TTL", cfg.Security.AccessTokenDuration)
	cfg.Security.RefreshTokenDuration = getEnvAsDuration("JWT_REFRESH_TTL", cfg.Security.RefreshTokenDuration)
	cfg.Security.BCryptCost = getEnvAsInt("BCRYPT_COST", cfg.Security.BCryptCost)

	cfg.Identity.Provider = getEnv("IDENTITY_PROVIDER", cfg.Identity.Provider)

	cfg.Execution.ScriptsDir = getEnv("SCRIPTS_DIR", cfg.Execution.ScriptsDir)
	cfg.Execution.DefaultTimeout = getEnvAsDuration("EXECUTION_DEFAULT_TIMEOUT", cfg.Execution.DefaultTimeout)
	cfg.Execution.MaxTimeout = getEnvAsDuration("EXECUTION_MAX_TIMEOUT", cfg.Execution.MaxTimeout)
	cfg.Execution.MaxOutputBytes = getEnvAsInt("EXECUTION_MAX_OUTPUT_BYTES", cfg.Execution.MaxOutputBytes)
	cfg.Execution.ExposeStderr = getEnvAsBool("EXECUTION_EXPOSE_STDERR", cfg.Execution.ExposeStderr)
	if inherit := getEnv("EXECUTION_INHERIT_ENV", ""); inherit != "" {
		cfg.Execution.InheritEnv = strings.Split(inherit, ",")
	}

	cfg.Permissions.CacheTTL = getEnvAsDuration("PERMISSIONS_CACHE_TTL", cfg.Permissions.CacheTTL)
	cfg.Permissions.CacheSize = getEnvAsInt("PERMISSIONS_CACHE_SIZE", cfg.Permissions.CacheSize)
	cfg.RateLimit.ExecutePerMinute = getEnvAsInt("RATE_LIMIT_EXECUTE_PER_MINUTE", cfg.RateLimit.ExecutePerMinute)

	cfg.Observability.Metrics.Enabled = getEnvAsBool("METRICS_ENABLED", cfg.Observability.Metrics.Enabled)
	cfg.Observability.Metrics.Path = getEnv("METRICS_PATH", cfg.Observability.Metrics.Path)
	cfg.Observability.Logging.Level = getEnv("LOG_LEVEL", cfg.Observability.Logging.Level)
	cfg.Observability.Logging.Format = getEnv("LOG_FORMAT", cfg.Observability.Logging.Format)

	return cfg
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Execution.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("execution config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *ExecutionConfig) Validate() error {
	if c.DefaultTimeout <= 0 {
		return errors.New("default_timeout must be positive")
	}
	if c.MaxTimeout < c.DefaultTimeout {
		return errors.New("max_timeout must be >= default_timeout")
	}
	if !filepath.IsAbs(c.ScriptsDir) {
		if _, err := filepath.Abs(c.ScriptsDir); err != nil {
			return fmt.Errorf("invalid scripts_dir: %w", err)
		}
	}
	for _, name := range c.InheritEnv {
		if strings.TrimSpace(name) == "" || strings.Contains(name, "=") {
			return fmt.Errorf("invalid inherit_env entry %q", name)
		}
	}
	return nil
}
