package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	CORSOrigins string
	TablePrefix string
	JWKSURL     string
	// DOI registry
	DOIPrefix     string
	DOIBaseURL    string
	DOIUser       string
	DOIPassword   string
	LandingPrefix string // public landing page base for registered items
	// DOIRetrySweepMinutes is how often the background registrar
	// re-walks errored registrations.
	DOIRetrySweepMinutes int
	// LLM
	AnthropicAPIKey string
	DefaultModel    string
	// Debug flags
	Debug bool
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		CORSOrigins: getEnv("CORS_ORIGINS", "http://localhost:3000"),
		TablePrefix: getTablePrefix(env),
		JWKSURL:     getEnv("JWKS_URL", ""),

		DOIPrefix:     getEnv("DOI_PREFIX", "10.1234"),
		DOIBaseURL:    getEnv("DOI_BASE_URL", "https://api.test.datacite.org"),
		DOIUser:       getEnv("DOI_USER", ""),
		DOIPassword:   getEnv("DOI_PASSWORD", ""),
		LandingPrefix: getEnv("LANDING_PREFIX", "http://localhost:3000/d"),

		DOIRetrySweepMinutes: getEnvInt("DOI_RETRY_SWEEP_MINUTES", 5),

		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-haiku-4-5-20251001"),

		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

// getTablePrefix returns the table prefix based on environment
func getTablePrefix(env string) string {
	if prefix := os.Getenv("TABLE_PREFIX"); prefix != "" {
		return prefix
	}

	switch env {
	case "prod":
		return "prod_"
	case "test":
		return "test_"
	default:
		return "dev_"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
