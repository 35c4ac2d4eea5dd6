package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPAddr       string
	TLSCertFile    string
	TLSKeyFile     string
	LogDir         string
	PprofEnabled   bool
	StorageBackend string
	// WalletSeedFile is a JSON array of wallets loaded into the memory backend.
	WalletSeedFile string
	DB             DBConfig
	Redis          RedisConfig
	Auth           AuthConfig
	Gateway        GatewayConfig
	Limits         LimitsConfig
	Settlement     SettlementConfig
}

type DBConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	LockTimeout  time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TLSEnabled reports whether the server should terminate TLS itself.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type AuthConfig struct {
	JWTSecret string
}

type GatewayConfig struct {
	URL            string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

type LimitsConfig struct {
	ChatDaily     int
	InsightsDaily int
	Location      *time.Location
}

type SettlementConfig struct {
	Delay   time.Duration
	Timeout time.Duration
}

// Load reads config.env when present and then the process environment.
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	var errs []error
	intVar := func(key string, fallback int) int {
		v, err := getEnvInt(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolVar := func(key string, fallback bool) bool {
		v, err := getEnvBool(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		v, err := getEnvDuration(key, fallback)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
		LogDir:         getEnv("LOG_DIR", "logs"),
		PprofEnabled:   boolVar("PPROF_ENABLED", false),
		StorageBackend: getEnv("STORAGE_BACKEND", StoragePostgres),
		WalletSeedFile: getEnv("WALLET_SEED_FILE", ""),
		DB: DBConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         intVar("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Name:         getEnv("DB_NAME", "paychain"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: intVar("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: intVar("DB_MAX_IDLE_CONNS", 5),
			LockTimeout:  durationVar("DB_LOCK_TIMEOUT", 2*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       intVar("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Gateway: GatewayConfig{
			URL:            getEnv("AI_GATEWAY_URL", "https://ai.gateway.lovable.dev/v1/chat/completions"),
			APIKey:         getEnv("AI_GATEWAY_API_KEY", ""),
			Model:          getEnv("AI_MODEL", "google/gemini-2.5-flash"),
			RequestTimeout: durationVar("AI_REQUEST_TIMEOUT", 30*time.Second),
		},
		Limits: LimitsConfig{
			ChatDaily:     intVar("CHAT_DAILY_LIMIT", 100),
			InsightsDaily: intVar("INSIGHTS_DAILY_LIMIT", 20),
		},
		Settlement: SettlementConfig{
			Delay:   durationVar("SETTLEMENT_DELAY", 2*time.Second),
			Timeout: durationVar("SETTLEMENT_TIMEOUT", 30*time.Second),
		},
	}

	loc, err := time.LoadLocation(getEnv("USAGE_TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid USAGE_TIMEZONE: %w", err))
	}
	cfg.Limits.Location = loc

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case StorageMemory, StoragePostgres:
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.StorageBackend)
	}
	if c.StorageBackend == StorageMemory && c.WalletSeedFile == "" {
		return errors.New("WALLET_SEED_FILE is required with the memory backend")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.Limits.ChatDaily <= 0 || c.Limits.InsightsDaily <= 0 {
		return errors.New("daily usage limits must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return i, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
