package toolgate

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Desarso/toolgate/tools"
	"github.com/joho/godotenv"
)

// Config holds everything needed to assemble a Gateway from the
// environment. Defaults target a local SQLite setup with the DuckDuckGo
// search backend and no API keys required beyond the provider's.
type Config struct {
	// Provider
	Provider       string // "openai" or "gemini"
	Model          string
	ProviderBase   string // override for OpenAI-compatible endpoints
	ProviderKeyEnv string

	// Store
	StoreType       string // "sqlite" or "postgres"
	StoreConnection string

	// Search
	Search tools.SearchConfig

	// Server
	ListenAddr string

	// Lifecycle
	MaxToolRounds   int
	RequestTimeout  time.Duration
	PerCallTimeout  time.Duration
	PricingSchedule string // cron expression for pricing refresh
}

// LoadConfig reads configuration from the environment. A .env file is
// honored when present.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Provider:       envOr("TOOLGATE_PROVIDER", "openai"),
		Model:          envOr("TOOLGATE_MODEL", "gpt-4o-mini"),
		ProviderBase:   os.Getenv("TOOLGATE_PROVIDER_BASE_URL"),
		ProviderKeyEnv: envOr("TOOLGATE_PROVIDER_KEY_ENV", "OPENAI_API_KEY"),

		StoreType:       envOr("TOOLGATE_STORE", "sqlite"),
		StoreConnection: envOr("TOOLGATE_STORE_CONNECTION", "toolgate.sqlite"),

		Search: tools.SearchConfig{
			Engine:         envOr("TOOLGATE_SEARCH_ENGINE", "duckduckgo"),
			MaxResults:     envInt("TOOLGATE_SEARCH_MAX_RESULTS", 10),
			GoogleCX:       os.Getenv("GOOGLE_CX"),
			GoogleKey:      os.Getenv("GOOGLE_KEY"),
			BingKey:        os.Getenv("BING_KEY"),
			SerperKey:      os.Getenv("SERPER_KEY"),
			SearXNGBaseURL: os.Getenv("SEARXNG_BASE_URL"),
		},

		ListenAddr: envOr("TOOLGATE_LISTEN", ":8080"),

		MaxToolRounds:   envInt("TOOLGATE_MAX_TOOL_ROUNDS", 5),
		RequestTimeout:  envDuration("TOOLGATE_REQUEST_TIMEOUT", 2*time.Minute),
		PerCallTimeout:  envDuration("TOOLGATE_TOOL_TIMEOUT", 15*time.Second),
		PricingSchedule: envOr("TOOLGATE_PRICING_REFRESH", "@every 5m"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid value for %s: %q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
