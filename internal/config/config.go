package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultAppSecret = "your-secret-key-change-in-production"

// Config 应用配置
type Config struct {
	Env       string
	AppSecret string
	Port      string
	SiteName  string
	LogLevel  string

	// 远程分类 API
	CategoryAPIURL     string
	CategoryAPITimeout time.Duration
	CategoryAPISecret  string
	CategoryTokenTTL   time.Duration

	CategoriesPerPage int
	CategoryCacheTTL  time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	AllowedOrigins []string
}

// Load 加载配置
func Load() *Config {
	appSecret := getEnv("APP_SECRET", defaultAppSecret)
	env := getEnv("APP_ENV", "development")

	if env == "production" && appSecret == defaultAppSecret {
		log.Warn().Msg("【严重警告】生产环境正在使用默认密钥！请立即设置 APP_SECRET 环境变量。")
	}

	return &Config{
		Env:                env,
		AppSecret:          appSecret,
		Port:               getEnv("PORT", "5007"),
		SiteName:           getEnv("SITE_NAME", "Admin"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CategoryAPIURL:     strings.TrimRight(getEnv("CATEGORY_API_URL", "http://localhost:3000/api"), "/"),
		CategoryAPITimeout: time.Duration(getEnvInt("CATEGORY_API_TIMEOUT_SECONDS", 10)) * time.Second,
		CategoryAPISecret:  getEnv("CATEGORY_API_SECRET", ""),
		CategoryTokenTTL:   time.Duration(getEnvInt("CATEGORY_API_TOKEN_TTL_MINUTES", 15)) * time.Minute,
		CategoriesPerPage:  getEnvInt("CATEGORIES_PER_PAGE", 4),
		CategoryCacheTTL:   time.Duration(getEnvInt("CATEGORY_CACHE_TTL_SECONDS", 60)) * time.Second,
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "")),
	}
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 非法或非正数时回退默认值
func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// splitList 逗号分隔，忽略空项
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
