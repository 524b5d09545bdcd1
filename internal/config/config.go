package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	Logging  LoggingConfig  `json:"logging"`
	Security SecurityConfig `json:"security"`
	Storage  StorageConfig  `json:"storage"`
	Mail     MailConfig     `json:"mail"`
	AI       AIConfig       `json:"ai"`
	Workflow WorkflowConfig `json:"workflow"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port            string        `json:"port"`
	Host            string        `json:"host"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	Environment     string        `json:"environment"`
	Debug           bool          `json:"debug"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	User           string        `json:"user"`
	Password       string        `json:"password"`
	DBName         string        `json:"dbname"`
	SSLMode        string        `json:"sslmode"`
	MaxConnections int           `json:"max_connections"`
	MaxIdleTime    time.Duration `json:"max_idle_time"`
	ConnectTimeout time.Duration `json:"connect_timeout"`
	MigrationsPath string        `json:"migrations_path"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	JWTSecret        string        `json:"-"`
	JWTExpiration    time.Duration `json:"jwt_expiration"`
	JWTIssuer        string        `json:"jwt_issuer"`
	BcryptCost       int           `json:"bcrypt_cost"`
	CORSOrigins      []string      `json:"cors_origins"`
	RateLimitEnabled bool          `json:"rate_limit_enabled"`
	LoginAttempts    int           `json:"login_attempts"`
	LoginWindow      time.Duration `json:"login_window"`
	SubmitAttempts   int           `json:"submit_attempts"`
	SubmitWindow     time.Duration `json:"submit_window"`
	BlockDuration    time.Duration `json:"block_duration"`
	TOTPIssuer       string        `json:"totp_issuer"`
}

// StorageConfig represents uploaded file storage configuration
type StorageConfig struct {
	Driver        string `json:"driver"`
	LocalDir      string `json:"local_dir"`
	Bucket        string `json:"bucket"`
	Prefix        string `json:"prefix"`
	Endpoint      string `json:"endpoint"`
	Region        string `json:"region"`
	AccessKey     string `json:"-"`
	SecretKey     string `json:"-"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

// MailConfig represents SMTP configuration
type MailConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	From     string `json:"from"`
}

// AIConfig represents text assistant configuration
type AIConfig struct {
	Provider          string        `json:"provider"`
	APIKey            string        `json:"-"`
	BaseURL           string        `json:"base_url"`
	Model             string        `json:"model"`
	MaxTokens         int           `json:"max_tokens"`
	Timeout           time.Duration `json:"timeout"`
	RequestsPerMinute int           `json:"requests_per_minute"`
	MaxWait           time.Duration `json:"max_wait"`
}

// WorkflowConfig represents audit workflow settings
type WorkflowConfig struct {
	Timezone  string `json:"timezone"`
	PortalURL string `json:"portal_url"`
}

// Load loads configuration from environment variables and defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			Environment:     getEnv("ENVIRONMENT", "development"),
			Debug:           getEnvBool("DEBUG", false),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnvInt("DB_PORT", 5432),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", ""),
			DBName:         getEnv("DB_NAME", "auditflow"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 20),
			MaxIdleTime:    getEnvDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			ConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "./migrations"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			JWTSecret:        getEnv("JWT_SECRET", ""),
			JWTExpiration:    getEnvDuration("JWT_EXPIRATION", 8*time.Hour),
			JWTIssuer:        getEnv("JWT_ISSUER", "auditflow"),
			BcryptCost:       getEnvInt("BCRYPT_COST", 12),
			CORSOrigins:      getEnvSlice("CORS_ORIGINS", []string{"*"}),
			RateLimitEnabled: getEnvBool("RATE_LIMIT_ENABLED", false),
			LoginAttempts:    getEnvInt("RATE_LIMIT_LOGIN_ATTEMPTS", 5),
			LoginWindow:      getEnvDuration("RATE_LIMIT_LOGIN_WINDOW", 15*time.Minute),
			SubmitAttempts:   getEnvInt("RATE_LIMIT_SUBMIT_ATTEMPTS", 30),
			SubmitWindow:     getEnvDuration("RATE_LIMIT_SUBMIT_WINDOW", time.Minute),
			BlockDuration:    getEnvDuration("RATE_LIMIT_BLOCK_DURATION", 30*time.Minute),
			TOTPIssuer:       getEnv("TOTP_ISSUER", "AuditFlow"),
		},
		Storage: StorageConfig{
			Driver:        getEnv("STORAGE_DRIVER", "local"),
			LocalDir:      getEnv("STORAGE_LOCAL_DIR", "./uploads"),
			Bucket:        getEnv("STORAGE_BUCKET", ""),
			Prefix:        getEnv("STORAGE_PREFIX", ""),
			Endpoint:      getEnv("STORAGE_ENDPOINT", ""),
			Region:        getEnv("STORAGE_REGION", "us-east-1"),
			AccessKey:     getEnv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getEnv("STORAGE_SECRET_KEY", ""),
			MaxUploadSize: int64(getEnvInt("STORAGE_MAX_UPLOAD_MB", 10)) << 20,
		},
		Mail: MailConfig{
			Enabled:  getEnvBool("MAIL_ENABLED", false),
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "auditflow@localhost"),
		},
		AI: AIConfig{
			Provider:          getEnv("AI_PROVIDER", "mock"),
			APIKey:            getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL:           getEnv("AI_BASE_URL", ""),
			Model:             getEnv("AI_MODEL", ""),
			MaxTokens:         getEnvInt("AI_MAX_TOKENS", 1024),
			Timeout:           getEnvDuration("AI_TIMEOUT", 30*time.Second),
			RequestsPerMinute: getEnvInt("AI_REQUESTS_PER_MINUTE", 30),
			MaxWait:           getEnvDuration("AI_MAX_WAIT", 2*time.Second),
		},
		Workflow: WorkflowConfig{
			Timezone:  getEnv("WORKFLOW_TIMEZONE", "UTC"),
			PortalURL: getEnv("PORTAL_URL", "http://localhost:3000"),
		},
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Security.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT secret must be set in production")
		}
		c.Security.JWTSecret = "development-only-secret"
	}

	switch c.Storage.Driver {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive")
	}

	switch c.AI.Provider {
	case "mock":
	case "anthropic":
		if c.AI.APIKey == "" {
			return fmt.Errorf("AI API key is required for provider: %s", c.AI.Provider)
		}
	default:
		return fmt.Errorf("unknown AI provider: %s", c.AI.Provider)
	}

	if c.Mail.Enabled && c.Mail.Host == "" {
		return fmt.Errorf("SMTP host is required when mail is enabled")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location resolves the workflow timezone used for end-of-day deadlines
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Workflow.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid workflow timezone %q: %w", c.Workflow.Timezone, err)
	}
	return loc, nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// GetDatabaseURL returns the database connection URL
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
		int(c.Database.ConnectTimeout.Seconds()),
	)
}

// GetRedisURL returns the Redis connection URL
func (c *Config) GetRedisURL() string {
	if c.Redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", c.Redis.Password, c.Redis.Host, c.Redis.Port, c.Redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", c.Redis.Host, c.Redis.Port, c.Redis.DB)
}

// Helper functions for environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
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

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
