package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DataDir        string
	StorageBackend string
	Mirror         string
	MirrorPath     string
	HistoryLimit   int

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	MongoURI string
	MongoDB  string

	ImageDir          string
	ImageURLPrefix    string
	ImageBatchSize    int
	ImageTimeoutSec   int
	ImageJitterMs     int
	ImageBatchDelayMs int

	FetchMode       string
	FetchTimeoutSec int
	MaxRetries      int
	RateLimitMs     int
	MaxConcurrency  int
	UserAgent       string
	RespectRobots   bool
	ChromeBin       string

	Extractor     string
	Enhancer      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Debug bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		DataDir:        dataDir,
		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "auto")),
		Mirror:         strings.ToLower(getEnv("MIRROR", "sqlite")),
		MirrorPath:     getEnv("MIRROR_PATH", filepath.Join(os.TempDir(), "property-ingest", "mirror.sqlite")),
		HistoryLimit:   getEnvInt("HISTORY_LIMIT", 50),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "property_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB", "property_ingest"),

		ImageDir:          getEnv("IMAGE_DIR", "./public/images"),
		ImageURLPrefix:    getEnv("IMAGE_URL_PREFIX", "/images"),
		ImageBatchSize:    getEnvInt("IMAGE_BATCH_SIZE", 5),
		ImageTimeoutSec:   getEnvInt("IMAGE_TIMEOUT_SEC", 30),
		ImageJitterMs:     getEnvInt("IMAGE_JITTER_MS", 500),
		ImageBatchDelayMs: getEnvInt("IMAGE_BATCH_DELAY_MS", 1000),

		FetchMode:       strings.ToLower(getEnv("FETCH_MODE", "http")),
		FetchTimeoutSec: getEnvInt("FETCH_TIMEOUT_SEC", 30),
		MaxRetries:      getEnvInt("MAX_RETRIES", 2),
		RateLimitMs:     getEnvInt("RATE_LIMIT_MS", 2000),
		MaxConcurrency:  getEnvInt("MAX_CONCURRENCY", 3),
		UserAgent: getEnv("USER_AGENT", "Mozilla/5.0 (compatible; property-ingest/1.0; "+
			"+https://github.com/property-ingest)"),
		RespectRobots: getEnvBool("RESPECT_ROBOTS", true),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		Extractor:     strings.ToLower(getEnv("EXTRACTOR", "readability")),
		Enhancer:      strings.ToLower(getEnv("ENHANCER", "none")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),

		Debug: getEnvBool("DEBUG", false),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
