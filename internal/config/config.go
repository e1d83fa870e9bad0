// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Lineage     LineageConfig
	Royalty     RoyaltyConfig
	Trending    TrendingConfig
	Consumer    ConsumerConfig
	Statements  StatementsConfig
	I18n        I18nConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	RateLimit    bool
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
}

type LineageConfig struct {
	MaxDepth    int
	WalkTimeout time.Duration
}

type RoyaltyConfig struct {
	Policy          string // single_hop or decayed
	CreatorShareBps int
	MaxHops         int
}

type TrendingConfig struct {
	Window      time.Duration
	RemixWeight float64
	Bucket      time.Duration
	HalfLife    time.Duration // zero disables decay weighting

	// ViralThreshold flags templates whose remix rate exceeds it. Zero disables the flag.
	ViralThreshold float64
}

type ConsumerConfig struct {
	Enabled      bool // API-only replicas run with consumers off
	PollInterval time.Duration
	BatchSize    int
	GapTimeout   time.Duration // how long a sequence gap may stay open before it is skipped
}

type StatementsConfig struct {
	LocalDir string
}

type I18nConfig struct {
	DefaultLocale string
}

const (
	RoyaltyPolicySingleHop = "single_hop"
	RoyaltyPolicyDecayed   = "decayed"

	defaultJWTSecret = "your-secret-key-change-in-production"
)

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			RateLimit:    getEnvAsBool("RATE_LIMIT_ENABLED", true),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "remix_engine"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "remix_engine.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 24),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "remix-royalty-statements"),
		},
		Lineage: LineageConfig{
			MaxDepth:    getEnvAsInt("LINEAGE_MAX_DEPTH", 64),
			WalkTimeout: getEnvAsDuration("LINEAGE_WALK_TIMEOUT", 2*time.Second),
		},
		Royalty: RoyaltyConfig{
			Policy:          getEnv("ROYALTY_POLICY", RoyaltyPolicySingleHop),
			CreatorShareBps: getEnvAsInt("ROYALTY_CREATOR_SHARE_BPS", 9000),
			MaxHops:         getEnvAsInt("ROYALTY_MAX_HOPS", 8),
		},
		Trending: TrendingConfig{
			Window:      getEnvAsDuration("TRENDING_WINDOW", 7*24*time.Hour),
			RemixWeight: getEnvAsFloat("TRENDING_REMIX_WEIGHT", 10),
			Bucket:      getEnvAsDuration("TRENDING_BUCKET", time.Minute),
			HalfLife:    getEnvAsDuration("TRENDING_HALF_LIFE", 0),

			ViralThreshold: getEnvAsFloat("TRENDING_VIRAL_THRESHOLD", 0.1),
		},
		Consumer: ConsumerConfig{
			Enabled:      getEnvAsBool("CONSUMERS_ENABLED", true),
			PollInterval: getEnvAsDuration("CONSUMER_POLL_INTERVAL", time.Second),
			BatchSize:    getEnvAsInt("CONSUMER_BATCH_SIZE", 100),
			GapTimeout:   getEnvAsDuration("CONSUMER_GAP_TIMEOUT", 30*time.Second),
		},
		Statements: StatementsConfig{
			LocalDir: getEnv("STATEMENTS_DIR", "./statements"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == defaultJWTSecret && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Lineage.MaxDepth < 1 {
		return fmt.Errorf("lineage max depth must be positive, got %d", c.Lineage.MaxDepth)
	}

	if c.Lineage.WalkTimeout <= 0 {
		return fmt.Errorf("lineage walk timeout must be positive")
	}

	switch c.Royalty.Policy {
	case RoyaltyPolicySingleHop, RoyaltyPolicyDecayed:
	default:
		return fmt.Errorf("unknown royalty policy %q", c.Royalty.Policy)
	}

	if c.Royalty.CreatorShareBps <= 0 || c.Royalty.CreatorShareBps > 10000 {
		return fmt.Errorf("creator share must be within (0, 10000] basis points, got %d", c.Royalty.CreatorShareBps)
	}

	if c.Royalty.MaxHops < 1 {
		return fmt.Errorf("royalty max hops must be positive, got %d", c.Royalty.MaxHops)
	}

	if c.Trending.Window <= 0 || c.Trending.Bucket <= 0 {
		return fmt.Errorf("trending window and bucket must be positive")
	}

	if c.Trending.Bucket > c.Trending.Window {
		return fmt.Errorf("trending bucket %s is larger than window %s", c.Trending.Bucket, c.Trending.Window)
	}

	if c.Trending.RemixWeight < 0 {
		return fmt.Errorf("trending remix weight must not be negative")
	}

	if c.Trending.ViralThreshold < 0 {
		return fmt.Errorf("trending viral threshold must not be negative")
	}

	if c.Consumer.BatchSize < 1 || c.Consumer.PollInterval <= 0 {
		return fmt.Errorf("consumer batch size and poll interval must be positive")
	}

	if c.Consumer.GapTimeout <= 0 {
		return fmt.Errorf("consumer gap timeout must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
