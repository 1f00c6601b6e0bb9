package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTL        time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	LoginRatePerMinute    int
	LogLevel              slog.Level
	Location              *time.Location
	LargeDiscrepancyCents int64
}

// Load reads the environment, after merging an optional .env file in the
// working directory. Variables already set in the environment win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}
	loginRate, err := strconv.Atoi(getEnv("LOGIN_RATE_PER_MINUTE", "10"))
	if err != nil || loginRate < 1 {
		loginRate = 10
	}

	cacheTTL, err := time.ParseDuration(getEnv("REPORT_CACHE_TTL", "24h"))
	if err != nil || cacheTTL <= 0 {
		return Config{}, fmt.Errorf("invalid REPORT_CACHE_TTL: %q", os.Getenv("REPORT_CACHE_TTL"))
	}

	loc, err := time.LoadLocation(getEnv("OUTLET_TIMEZONE", "Asia/Jakarta"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid OUTLET_TIMEZONE: %w", err)
	}

	threshold, err := strconv.ParseInt(getEnv("LARGE_DISCREPANCY_THRESHOLD_CENTS", "50000"), 10, 64)
	if err != nil || threshold < 1 {
		return Config{}, fmt.Errorf("invalid LARGE_DISCREPANCY_THRESHOLD_CENTS: %q", os.Getenv("LARGE_DISCREPANCY_THRESHOLD_CENTS"))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTL:        cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		LoginRatePerMinute:    loginRate,
		LogLevel:              level,
		Location:              loc,
		LargeDiscrepancyCents: threshold,
	}, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
