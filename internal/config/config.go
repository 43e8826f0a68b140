package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string
	LogMode   string
	HTTPAddr  string

	BookProviders     []string
	KakaoBaseURL      string
	KakaoRESTAPIKey   string
	NaverBaseURL      string
	NaverClientID     string
	NaverClientSecret string
	ProviderTimeoutMs int
	ProviderRateRPS   int

	MatchAutoThreshold    float64
	MatchLocalAcceptScore float64
	MatchTitleWeight      float64
	MatchAuthorWeight     float64
	MatchSearchLimit      int
	MatchLocalLimit       int

	ResolveWorkers      int
	ResolveQueueSize    int
	BackfillIntervalSec int
	BackfillBatch       int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogMode:   getEnv("LOG_MODE", "dev"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),

		BookProviders:     getEnvList("BOOK_PROVIDERS", []string{"KAKAO", "NAVER"}),
		KakaoBaseURL:      getEnv("KAKAO_BOOK_BASE_URL", "https://dapi.kakao.com/v3/search/book"),
		KakaoRESTAPIKey:   getEnv("KAKAO_REST_API_KEY", ""),
		NaverBaseURL:      getEnv("NAVER_BOOK_BASE_URL", "https://openapi.naver.com/v1/search/book.json"),
		NaverClientID:     getEnv("NAVER_CLIENT_ID", ""),
		NaverClientSecret: getEnv("NAVER_CLIENT_SECRET", ""),
		ProviderTimeoutMs: getEnvInt("PROVIDER_TIMEOUT_MS", 5000),
		ProviderRateRPS:   getEnvInt("PROVIDER_RATE_LIMIT_RPS", 10),

		MatchAutoThreshold:    getEnvFloat("MATCH_AUTO_THRESHOLD", 0.88),
		MatchLocalAcceptScore: getEnvFloat("MATCH_LOCAL_ACCEPT_SCORE", 0.85),
		MatchTitleWeight:      getEnvFloat("MATCH_TITLE_WEIGHT", 0.7),
		MatchAuthorWeight:     getEnvFloat("MATCH_AUTHOR_WEIGHT", 0.3),
		MatchSearchLimit:      getEnvInt("MATCH_SEARCH_LIMIT", 10),
		MatchLocalLimit:       getEnvInt("MATCH_LOCAL_LIMIT", 10),

		ResolveWorkers:      getEnvInt("RESOLVE_WORKERS", 4),
		ResolveQueueSize:    getEnvInt("RESOLVE_QUEUE_SIZE", 256),
		BackfillIntervalSec: getEnvInt("BACKFILL_INTERVAL_SEC", 60),
		BackfillBatch:       getEnvInt("BACKFILL_BATCH", 50),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList reads a comma separated, order preserving list of upper-cased names.
func getEnvList(key string, fallback []string) []string {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	out := []string{}
	for _, part := range strings.Split(value, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
