package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Caption (OpenAI互換API)
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string
	CaptionTimeout time.Duration

	// LinkedIn
	LinkedInClientID         string
	LinkedInClientSecret     string
	LinkedInRedirectURL      string
	LinkedInOrganizationName string
	LinkedInUseOrgScopes     bool
	LinkedInTimeout          time.Duration

	// Upload / Storage
	UploadDir       string
	UploadMaxSize   int64
	StorageBackend  string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3PublicBaseURL string
	S3AccessKeyID   string
	S3SecretKey     string

	// Image fetch（外部URLの画像取得）
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Rate Limit
	RateLimitGeneral           int
	RateLimitPublicationCreate int

	// Worker
	CleanupInterval   time.Duration
	WorkerMetricsPort string // 空の場合はワーカーのメトリクスを公開しない

	// Server
	ServerPort  string
	APIURL      string
	FrontendURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigins  []string
	CORSAllowedSuffixes []string
}

// LoadDotEnv はカレントディレクトリの.envファイルを環境変数として読み込む。
// ファイルが存在しない場合は何もしない。既存の環境変数は上書きしない。
func LoadDotEnv() {
	_ = godotenv.Load()
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	if cfg.OpenAIAPIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// データベース名が省略されたURLは暗黙のデフォルトDBへ接続してしまうため拒否する
	if err := validateDatabaseURL(cfg.DatabaseURL); err != nil {
		return nil, err
	}

	// Optional fields with defaults
	cfg.Environment = getEnvString("APP_ENV", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 7*24*60*60)

	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.CaptionTimeout = getEnvDuration("CAPTION_TIMEOUT", 60*time.Second)

	cfg.LinkedInClientID = getEnvString("LINKEDIN_CLIENT_ID", "")
	cfg.LinkedInClientSecret = getEnvString("LINKEDIN_CLIENT_SECRET", "")
	cfg.LinkedInRedirectURL = getEnvString("LINKEDIN_REDIRECT_URI", "")
	cfg.LinkedInOrganizationName = getEnvString("LINKEDIN_ORGANIZATION_NAME", "Webysta")
	cfg.LinkedInUseOrgScopes = getEnvBool("LINKEDIN_USE_ORGANIZATION_SCOPES", true)
	cfg.LinkedInTimeout = getEnvDuration("LINKEDIN_TIMEOUT", 30*time.Second)

	cfg.UploadDir = getEnvString("UPLOAD_DIR", "uploads")
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10*1024*1024)
	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", "local")
	cfg.S3Bucket = getEnvString("S3_BUCKET", "")
	cfg.S3Region = getEnvString("S3_REGION", "eu-west-3")
	cfg.S3Endpoint = getEnvString("S3_ENDPOINT", "")
	cfg.S3PublicBaseURL = strings.TrimRight(getEnvString("S3_PUBLIC_BASE_URL", ""), "/")
	cfg.S3AccessKeyID = getEnvString("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretKey = getEnvString("S3_SECRET_ACCESS_KEY", "")

	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", cfg.UploadMaxSize)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublicationCreate = getEnvInt("RATE_LIMIT_PUBLICATION_CREATE", 10)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 24 * time.Hour
	}
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "")

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.APIURL = strings.TrimRight(getEnvString("API_URL", "http://localhost:"+cfg.ServerPort), "/")
	cfg.FrontendURL = strings.TrimRight(getEnvString("FRONTEND_URL", "http://localhost:5173"), "/")

	cfg.CookieSecure = cfg.IsProduction()
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	cfg.CORSAllowedOrigins = uniqueStrings(append(
		[]string{cfg.FrontendURL, "http://localhost:5173", "http://localhost:3000"},
		getEnvList("CORS_ALLOWED_ORIGINS")...,
	))
	cfg.CORSAllowedSuffixes = getEnvListDefault("CORS_ALLOWED_SUFFIXES", []string{".vercel.app", ".onrender.com"})

	if cfg.StorageBackend == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_BACKEND=s3")
	}

	return cfg, nil
}

// IsProduction は本番環境で動作しているかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LinkedInEnabled はLinkedIn連携に必要な設定が揃っているかを返す。
func (c *Config) LinkedInEnabled() bool {
	return c.LinkedInClientID != "" && c.LinkedInClientSecret != "" && c.LinkedInRedirectURL != ""
}

func validateDatabaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("DATABASE_URL must include a database name")
	}
	return nil
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの環境変数をスライスとして返す。空要素は除外する。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvListDefault(key string, defaultVal []string) []string {
	if list := getEnvList(key); len(list) > 0 {
		return list
	}
	return defaultVal
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
