package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	ServerPort int

	Department       string
	MaxCars          int
	RateLimitMs      int
	InactiveAfterMin int
	ScrapeProvider   string
	ChromeBin        string

	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicModel   string
	AnalysisTTLHours int
	FeatureCatalog   string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "carscout"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "carscout123"),
		PostgresDB:       getEnv("POSTGRES_DB", "cars_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		ServerPort: getEnvInt("SERVER_PORT", 8000),

		Department:       getEnv("SCRAPE_DEPARTMENT", "69"),
		MaxCars:          getEnvInt("SCRAPE_MAX_CARS", 100),
		RateLimitMs:      getEnvInt("SCRAPE_RATE_LIMIT_MS", 500),
		InactiveAfterMin: getEnvInt("SCRAPE_INACTIVE_AFTER_MINUTES", 60),
		ScrapeProvider:   getEnv("SCRAPE_PROVIDER", "api"),
		ChromeBin:        getEnv("CHROME_BIN", ""),

		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-sonnet-20240229"),
		AnalysisTTLHours: getEnvInt("ANALYSIS_TTL_HOURS", 168),
		FeatureCatalog:   getEnv("FEATURE_CATALOG_PATH", "./configs/features.yaml"),
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
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
