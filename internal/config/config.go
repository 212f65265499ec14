// Package config は環境変数からの設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はAPIサーバーの設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Loan
	LoanPeriodDays int

	// Cover fetch
	CoverFetchTimeout time.Duration
	CoverMaxSize      int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitLogin   int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// ClientConfig はCLIクライアントの設定を保持する。
type ClientConfig struct {
	// APIURL は図書館APIサーバーのベースURL。
	APIURL string
	// SessionFile はログイン情報の保存先パス。空の場合は既定パスを使う。
	SessionFile string
	// HTTPTimeout はリモート呼び出しのタイムアウト。
	HTTPTimeout time.Duration
	// RateLimit は1秒あたりのリクエスト数上限。
	RateLimit int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.LoanPeriodDays = getEnvInt("LOAN_PERIOD_DAYS", 14)
	cfg.CoverFetchTimeout = getEnvDuration("COVER_FETCH_TIMEOUT", 10*time.Second)
	cfg.CoverMaxSize = getEnvInt64("COVER_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// LoadClient は環境変数からClientConfigを読み込む。
// TOSHOKAN_API_URLが未設定の場合はエラーを返す。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	cfg.APIURL = os.Getenv("TOSHOKAN_API_URL")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("required environment variables are not set: [TOSHOKAN_API_URL]")
	}

	cfg.SessionFile = getEnvString("TOSHOKAN_SESSION_FILE", "")
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 5)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
