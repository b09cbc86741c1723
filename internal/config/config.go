// Package config loads the engine's configuration from environment
// variables into a typed, immutable value that is threaded explicitly
// through component constructors, per the design note preferring that over
// a process-wide global record.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration.
type Config struct {
	Engine   EngineConfig
	Database DatabaseConfig
	Security SecurityConfig
	Server   ServerConfig
	Logging  LoggingConfig
}

// EngineConfig holds the trading parameters recognized by §6.
type EngineConfig struct {
	PaperTrade                bool
	TradingEnabled            bool
	MinSpreadThreshold        int // cents
	OrderSizeDefault          int
	MaxExposurePerMarket      float64 // dollars
	MaxTotalExposure          float64 // dollars, Capital Book starting balance
	PairTimeout               time.Duration
	ResolutionBuffer          time.Duration
	CancelDeadline            time.Duration
	ScanInterval              time.Duration
	MaxOneSidedFillsBeforeHalt int
	Assets                    []string
	SeriesTicker              string
}

// DatabaseConfig configures the Ledger's Postgres connection.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// DSN returns the connection string passed to sql.Open.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword is safe to log.
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// SecurityConfig holds at-rest credential encryption and exchange auth
// material.
type SecurityConfig struct {
	CredentialPassphrase string // derives the AES key via PBKDF2
	ExchangeKeyID        string // sent as ACCESS-KEY
	ExchangePrivateKeyPEM string // path to the file holding the encrypted-at-rest RSA private key
}

// ServerConfig is the optional listener the dashboard (out of scope) would
// attach to; retained only so Prometheus metrics have a /metrics endpoint.
type ServerConfig struct {
	Port int
	Host string
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from the environment, applying defaults and
// validating ranges. A malformed configuration is FATAL: the engine must
// not start.
func Load() (*Config, error) {
	cfg := &Config{
		Engine: EngineConfig{
			PaperTrade:                getEnvAsBool("PAPER_TRADE", true),
			TradingEnabled:            getEnvAsBool("TRADING_ENABLED", true),
			MinSpreadThreshold:        getEnvAsInt("MIN_SPREAD_THRESHOLD", 1),
			OrderSizeDefault:          getEnvAsInt("ORDER_SIZE_DEFAULT", 10),
			MaxExposurePerMarket:      getEnvAsFloat("MAX_EXPOSURE_PER_MARKET", 100),
			MaxTotalExposure:          getEnvAsFloat("MAX_TOTAL_EXPOSURE", 1000),
			PairTimeout:               getEnvAsDuration("PAIR_TIMEOUT_SECONDS", 45*time.Second),
			ResolutionBuffer:          getEnvAsDuration("RESOLUTION_BUFFER_SECONDS", 120*time.Second),
			CancelDeadline:            getEnvAsDuration("CANCEL_DEADLINE_SECONDS", 90*time.Second),
			ScanInterval:              getEnvAsDuration("SCAN_INTERVAL_SECONDS", 12*time.Second),
			MaxOneSidedFillsBeforeHalt: getEnvAsInt("MAX_ONE_SIDED_FILLS_BEFORE_HALT", 3),
			Assets:                    getEnvAsList("ASSETS", []string{"BTC", "ETH", "SOL", "XRP"}),
			SeriesTicker:              getEnv("SERIES_TICKER", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "marketmaker"),
			User:     getEnv("DB_USER", "marketmaker"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			CredentialPassphrase:  getEnv("CREDENTIAL_PASSPHRASE", ""),
			ExchangeKeyID:         getEnv("EXCHANGE_KEY_ID", ""),
			ExchangePrivateKeyPEM: getEnv("EXCHANGE_PRIVATE_KEY_PEM_PATH", ""),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 9090),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if !c.Engine.PaperTrade {
		if c.Security.CredentialPassphrase == "" {
			return fmt.Errorf("CREDENTIAL_PASSPHRASE is required when PAPER_TRADE=false")
		}
		if c.Security.ExchangeKeyID == "" {
			return fmt.Errorf("EXCHANGE_KEY_ID is required when PAPER_TRADE=false")
		}
	}

	if c.Engine.MinSpreadThreshold < 0 {
		return fmt.Errorf("MIN_SPREAD_THRESHOLD must be non-negative, got %d", c.Engine.MinSpreadThreshold)
	}
	if c.Engine.OrderSizeDefault <= 0 {
		return fmt.Errorf("ORDER_SIZE_DEFAULT must be positive, got %d", c.Engine.OrderSizeDefault)
	}
	if c.Engine.MaxExposurePerMarket <= 0 {
		return fmt.Errorf("MAX_EXPOSURE_PER_MARKET must be positive, got %f", c.Engine.MaxExposurePerMarket)
	}
	if c.Engine.MaxTotalExposure <= 0 {
		return fmt.Errorf("MAX_TOTAL_EXPOSURE must be positive, got %f", c.Engine.MaxTotalExposure)
	}
	if c.Engine.PairTimeout <= 0 || c.Engine.ResolutionBuffer <= 0 || c.Engine.CancelDeadline <= 0 || c.Engine.ScanInterval <= 0 {
		return fmt.Errorf("timeout/interval durations must be positive")
	}
	if c.Engine.MaxOneSidedFillsBeforeHalt <= 0 {
		return fmt.Errorf("MAX_ONE_SIDED_FILLS_BEFORE_HALT must be positive, got %d", c.Engine.MaxOneSidedFillsBeforeHalt)
	}
	if len(c.Engine.Assets) == 0 {
		return fmt.Errorf("ASSETS must name at least one asset")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
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
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
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
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
