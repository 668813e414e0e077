// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret                   string  `mapstructure:"JWT_SECRET"`
	Port                        string  `mapstructure:"PORT"`
	DBHost                      string  `mapstructure:"DB_HOST"`
	DBPort                      string  `mapstructure:"DB_PORT"`
	DBUser                      string  `mapstructure:"DB_USER"`
	DBPassword                  string  `mapstructure:"DB_PASSWORD"`
	DBName                      string  `mapstructure:"DB_NAME"`
	DBSSLMode                   string  `mapstructure:"DB_SSLMODE"`
	DBMaxOpenConns              int     `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns              int     `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes    int     `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	RedisURL                    string  `mapstructure:"REDIS_URL"`
	Env                         string  `mapstructure:"APP_ENV"`
	OverdueSweepIntervalSeconds int     `mapstructure:"OVERDUE_SWEEP_INTERVAL_SECONDS"`
	OverdueAutoMark             bool    `mapstructure:"OVERDUE_AUTO_MARK"`
	TracingEnabled              bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter             string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint                string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio         float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	RateLimitPerMinute          int     `mapstructure:"RATE_LIMIT_PER_MINUTE"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "gamelend")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("OVERDUE_SWEEP_INTERVAL_SECONDS", 900)
	viper.SetDefault("OVERDUE_AUTO_MARK", false)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 30)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// OverdueSweepInterval returns the sweep period; zero disables the sweep.
func (c *Config) OverdueSweepInterval() time.Duration {
	if c.OverdueSweepIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.OverdueSweepIntervalSeconds) * time.Second
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 {
		return errors.New("DB pool sizes must not be negative")
	}
	if c.DBConnMaxLifetimeMinutes <= 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must be positive")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable SSL in production")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
