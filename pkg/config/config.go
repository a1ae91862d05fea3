package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Auth modes
const (
	AuthModeFirebase = "firebase"
	AuthModeJWT      = "jwt"
)

// Change notification sources
const (
	NotifySourceGorm     = "gorm"
	NotifySourcePostgres = "postgres"
)

type Config struct {
	Port string
	Env  string

	PostgresConnStr string
	MongoURI        string
	MongoDatabase   string
	RedisAddr       string
	RedisChannel    string

	AuthMode                string
	FirebaseCredentialsPath string
	FirebaseProjectID       string
	JWTSecret               string

	NotifySource string

	TMDBAPIKey    string
	TMDBBaseURL   string
	TMDBCacheTTL  time.Duration
	TMDBRateLimit float64
	TMDBTimeout   time.Duration
}

// Load reads the configuration from the environment, after loading a .env
// file when one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		PostgresConnStr:         getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "reelshelf"),
		RedisAddr:               getEnv("REDIS_ADDR", ""),
		RedisChannel:            getEnv("REDIS_CHANNEL", "saved_item_changes"),
		AuthMode:                getEnv("AUTH_MODE", AuthModeFirebase),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase_credentials.json"),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		NotifySource:            getEnv("NOTIFY_SOURCE", NotifySourceGorm),
		TMDBAPIKey:              getEnv("TMDB_API_KEY", ""),
		TMDBBaseURL:             getEnv("TMDB_BASE_URL", "https://api.themoviedb.org/3"),
		TMDBCacheTTL:            getDuration("TMDB_CACHE_TTL", time.Hour),
		TMDBRateLimit:           getFloat("TMDB_RATE_LIMIT", 40),
		TMDBTimeout:             getDuration("TMDB_TIMEOUT", 10*time.Second),
	}
}

// Validate reports the first setting that makes the server unable to start.
func (c *Config) Validate() error {
	if c.PostgresConnStr == "" {
		return fmt.Errorf("POSTGRES_CONN_STR environment variable not set")
	}
	switch c.AuthMode {
	case AuthModeFirebase:
		if c.FirebaseCredentialsPath == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required when AUTH_MODE=firebase")
		}
	case AuthModeJWT:
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	switch c.NotifySource {
	case NotifySourceGorm, NotifySourcePostgres:
	default:
		return fmt.Errorf("unknown NOTIFY_SOURCE %q", c.NotifySource)
	}
	if c.TMDBRateLimit <= 0 {
		return fmt.Errorf("TMDB_RATE_LIMIT must be positive")
	}
	return nil
}

// IsProduction reports whether the server runs with production settings
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
