package internal

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration"`
	SessionDuration     time.Duration `mapstructure:"session_duration"`
	BCryptCost          int           `mapstructure:"bcrypt_cost"`
	MinPasswordLength   int           `mapstructure:"min_password_length"`
	PasswordHistorySize int           `mapstructure:"password_history_size"`
	LockoutThreshold    int           `mapstructure:"lockout_threshold"`
	LockoutDuration     time.Duration `mapstructure:"lockout_duration"`
	ResetTokenDuration  time.Duration `mapstructure:"reset_token_duration"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
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

// LoadConfigFromEnv builds a Config from environment variables. It is used in
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("SECURITY_JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("SECURITY_ACCESS_TOKEN_DURATION", 15*time.Minute),
			SessionDuration:     getEnvAsDuration("SECURITY_SESSION_DURATION", 24*time.Hour),
			BCryptCost:          getEnvAsInt("SECURITY_BCRYPT_COST", 12),
			MinPasswordLength:   getEnvAsInt("SECURITY_MIN_PASSWORD_LENGTH", 8),
			PasswordHistorySize: getEnvAsInt("SECURITY_PASSWORD_HISTORY_SIZE", 5),
			LockoutThreshold:    getEnvAsInt("SECURITY_LOCKOUT_THRESHOLD", 5),
			LockoutDuration:     getEnvAsDuration("SECURITY_LOCKOUT_DURATION", 15*time.Minute),
			ResetTokenDuration:  getEnvAsDuration("SECURITY_RESET_TOKEN_DURATION", time.Hour),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOGGING_LEVEL", "info"),
				Format: getEnv("LOGGING_FORMAT", "json"),
			},
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	if c.Database.Source == "" {
		return errors.New("database source is required")
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security jwt_secret is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return errors.New("security jwt_secret must be at least 32 characters")
	}
	if c.Security.AccessTokenDuration <= 0 {
		return errors.New("security access_token_duration must be positive")
	}
	if c.Security.SessionDuration < c.Security.AccessTokenDuration {
		return fmt.Errorf("security session_duration (%s) must not be shorter than access_token_duration (%s)",
			c.Security.SessionDuration, c.Security.AccessTokenDuration)
	}
	if c.Security.BCryptCost < 10 || c.Security.BCryptCost > 15 {
		return fmt.Errorf("security bcrypt_cost must be between 10 and 15, got %d", c.Security.BCryptCost)
	}
	if c.Security.MinPasswordLength < 8 {
		return errors.New("security min_password_length must be at least 8")
	}
	if c.Security.LockoutThreshold <= 0 {
		return errors.New("security lockout_threshold must be positive")
	}
	if c.Security.LockoutDuration <= 0 {
		return errors.New("security lockout_duration must be positive")
	}
	if c.Security.ResetTokenDuration <= 0 {
		return errors.New("security reset_token_duration must be positive")
	}
	if c.Security.PasswordHistorySize < 0 {
		return errors.New("security password_history_size cannot be negative")
	}
	return nil
}
