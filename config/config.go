package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Dispatch modes for the analysis pipeline.
const (
	DispatchInProcess = "inprocess"
	DispatchQueue     = "queue"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	AWS       AWSConfig
	Analysis  AnalysisConfig
	Realtime  RealtimeConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	PublicWSBase       string // e.g. ws://localhost:8000, used to build websocket_url
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/edumirror?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and the S3 bucket for uploaded materials.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	MaterialsBucket string
	MaxFileSize     int64 // presentation upload limit in bytes
	MaxAudioSize    int64 // audio upload limit in bytes
}

// AnalysisConfig configures the external analysis capability and dispatch.
type AnalysisConfig struct {
	BaseURL  string // OpenAI-compatible API root, e.g. https://api.openai.com/v1
	APIKey   string
	Model    string
	Timeout  time.Duration // bound on one capability call
	Estimate time.Duration // reported estimated_completion offset
	Dispatch string        // inprocess | queue
}

// RealtimeConfig tunes the WebSocket layer.
type RealtimeConfig struct {
	SendBuffer      int
	VolumeThreshold float64
	MetricsTTL      time.Duration
}

// RateLimitConfig bounds API requests per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnv("PORT", "8000")
	cfg := &Config{
		Server: ServerConfig{
			Port:               port,
			PublicWSBase:       getEnv("PUBLIC_WS_BASE", "ws://localhost:"+port),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "edumirror"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 2),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			MaterialsBucket: getEnv("AWS_S3_MATERIALS_BUCKET", "edumirror-materials"),
			MaxFileSize:     int64(getEnvInt("MAX_FILE_SIZE", 52428800)),
			MaxAudioSize:    int64(getEnvInt("AUDIO_MAX_SIZE", 104857600)),
		},
		Analysis: AnalysisConfig{
			BaseURL:  strings.TrimRight(getEnv("ANALYSIS_BASE_URL", "https://api.openai.com/v1"), "/"),
			APIKey:   getEnv("OPENAI_API_KEY", ""),
			Model:    getEnv("ANALYSIS_MODEL", "gpt-3.5-turbo"),
			Timeout:  getEnvDuration("ANALYSIS_TIMEOUT", 90*time.Second),
			Estimate: getEnvDuration("ANALYSIS_ESTIMATE", 3*time.Minute),
			Dispatch: strings.ToLower(getEnv("ANALYSIS_DISPATCH", DispatchInProcess)),
		},
		Realtime: RealtimeConfig{
			SendBuffer:      getEnvInt("WS_SEND_BUFFER", 64),
			VolumeThreshold: getEnvFloat("WS_VOLUME_THRESHOLD", 0.3),
			MetricsTTL:      getEnvDuration("WS_METRICS_TTL", 6*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Analysis.Dispatch {
	case DispatchInProcess, DispatchQueue:
	default:
		return fmt.Errorf("ANALYSIS_DISPATCH must be %q or %q, got %q", DispatchInProcess, DispatchQueue, c.Analysis.Dispatch)
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT must be positive")
	}
	if c.Realtime.VolumeThreshold <= 0 || c.Realtime.VolumeThreshold > 1 {
		return fmt.Errorf("WS_VOLUME_THRESHOLD must be within (0,1]")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
