// Package config は起動時の設定読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider種別
const (
	ProviderGoogle = "google"
	ProviderFake   = "fake"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge int

	// Calendar provider
	Provider        string
	ProviderTimeout time.Duration
	AppAccountEmail string

	// Rate Limit (req/min)
	RateLimitGeneral     int
	RateLimitGroupCreate int

	// Worker
	CleanupSchedule string

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins []string
}

// fileConfig はCONFIG_FILEで指定するYAMLファイルの形式。
// 秘密情報は含めず、環境変数で指定する。
type fileConfig struct {
	ServerPort        string `yaml:"server_port"`
	Provider          string `yaml:"provider"`
	ProviderTimeout   string `yaml:"provider_timeout"`
	AppAccountEmail   string `yaml:"app_account_email"`
	CleanupSchedule   string `yaml:"cleanup_schedule"`
	CORSAllowedOrigin string `yaml:"cors_allowed_origin"`
	LogLevel          string `yaml:"log_level"`
	RateLimit         struct {
		General     int `yaml:"general"`
		GroupCreate int `yaml:"group_create"`
	} `yaml:"rate_limit"`
}

// Load は環境変数（とCONFIG_FILEのYAML）からConfigを読み込む。
// 同じ項目は環境変数がファイルより優先される。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	file, err := loadFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	var missing []string
	required := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg.DatabaseURL = required("DATABASE_URL")
	cfg.GoogleClientID = required("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = required("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = required("GOOGLE_REDIRECT_URL")
	cfg.BaseURL = required("BASE_URL")

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ServerPort = getEnvString("SERVER_PORT", orDefault(file.ServerPort, "8080"))
	cfg.Provider = strings.ToLower(getEnvString("PROVIDER", orDefault(file.Provider, ProviderGoogle)))
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", parseDuration(file.ProviderTimeout, 10*time.Second))
	cfg.AppAccountEmail = strings.ToLower(getEnvString("APP_ACCOUNT_EMAIL", file.AppAccountEmail))
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", orDefaultInt(file.RateLimit.General, 120))
	cfg.RateLimitGroupCreate = getEnvInt("RATE_LIMIT_GROUP_CREATE", orDefaultInt(file.RateLimit.GroupCreate, 10))
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", orDefault(file.CleanupSchedule, "@daily"))
	cfg.LogLevel = getEnvString("LOG_LEVEL", orDefault(file.LogLevel, "info"))
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigins = splitList(getEnvString("CORS_ALLOWED_ORIGIN", orDefault(file.CORSAllowedOrigin, "http://localhost:3000")))

	switch cfg.Provider {
	case ProviderGoogle, ProviderFake:
	default:
		return nil, fmt.Errorf("unsupported PROVIDER %q: must be %q or %q", cfg.Provider, ProviderGoogle, ProviderFake)
	}

	return cfg, nil
}

// loadFile はYAML設定ファイルを読み込む。pathが空の場合はゼロ値を返す。
func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("設定ファイルのパースに失敗しました: %w", err)
	}
	return fc, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func parseDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// splitList はカンマ区切りの値を分割し、空要素を除く。
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	return parseDuration(os.Getenv(key), defaultVal)
}
