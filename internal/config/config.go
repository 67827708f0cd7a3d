// 包 config：集中读取环境变量并给出默认值；.env 文件由 Load 之前的 godotenv 加载
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 服务运行参数
type Config struct {
	Addr    string
	APIBase string
	UIDir   string

	TLSEnabled  bool
	TLSCertPath string
	TLSKeyPath  string

	// LayerStore 取 memory 或 postgres
	LayerStore string

	OutlineEndpoint  string
	OutlineHealthURL string
	OutlineDir       string
	OutlineTimeout   time.Duration
	OutlineCacheTTL  time.Duration
	OutlineLRUSize   int

	Snap   SnapConfig
	Radius RadiusConfig

	GeoIPPath  string
	SessionTTL time.Duration

	RateLimitEnabled bool
	RateLimitQPS     int
}

// SnapConfig 吸附参数
type SnapConfig struct {
	Enabled     bool
	MinZoom     float64
	ThresholdPx float64
	Debounce    time.Duration
}

// RadiusConfig 圆形标记半径范围与按意图区分的默认值（米）
type RadiusConfig struct {
	Min           float64
	Max           float64
	DefaultOffer  float64
	DefaultSearch float64
}

// LoadDotEnv 依次尝试 .env 与 data/env/.env；文件缺失不报错
func LoadDotEnv() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
}

// Load 从环境变量构建配置
func Load() Config {
	c := Config{
		Addr:             getEnv("ADDR", ":8080"),
		APIBase:          strings.TrimRight(getEnv("API_BASE", "/api"), "/"),
		UIDir:            getEnv("UI_DIST", filepath.Join("ui", "dist")),
		TLSEnabled:       os.Getenv("TLS_ENABLE") == "true",
		TLSCertPath:      getEnv("TLS_CERT_PATH", filepath.Join("data", "certs", "server.crt")),
		TLSKeyPath:       getEnv("TLS_KEY_PATH", filepath.Join("data", "certs", "server.key")),
		LayerStore:       strings.ToLower(getEnv("LAYER_STORE", "memory")),
		OutlineEndpoint:  os.Getenv("OUTLINE_ENDPOINT"),
		OutlineHealthURL: os.Getenv("OUTLINE_HEALTH_URL"),
		OutlineDir:       getEnv("OUTLINE_DIR", filepath.Join("data", "outlines")),
		OutlineTimeout:   time.Duration(getEnvAsInt("OUTLINE_TIMEOUT_MS", 4000)) * time.Millisecond,
		OutlineCacheTTL:  time.Duration(getEnvAsInt("OUTLINE_CACHE_TTL_S", 600)) * time.Second,
		OutlineLRUSize:   getEnvAsInt("OUTLINE_LRU_SIZE", 256),
		Snap: SnapConfig{
			Enabled:     os.Getenv("SNAP_ENABLED") != "false",
			MinZoom:     getEnvAsFloat("SNAP_MIN_ZOOM", 16),
			ThresholdPx: getEnvAsFloat("SNAP_THRESHOLD_PX", 15),
			Debounce:    time.Duration(getEnvAsInt("SNAP_DEBOUNCE_MS", 500)) * time.Millisecond,
		},
		Radius: RadiusConfig{
			Min:           getEnvAsFloat("RADIUS_MIN", 50),
			Max:           getEnvAsFloat("RADIUS_MAX", 500),
			DefaultOffer:  getEnvAsFloat("RADIUS_DEFAULT_OFFER", 100),
			DefaultSearch: getEnvAsFloat("RADIUS_DEFAULT_SEARCH", 300),
		},
		GeoIPPath:        getEnv("GEOIP_PATH", filepath.Join("data", "geoip", "GeoLite2-City.mmdb")),
		SessionTTL:       time.Duration(getEnvAsInt("SESSION_TTL_S", 3600)) * time.Second,
		RateLimitEnabled: os.Getenv("RATE_LIMIT_ENABLED") == "true",
		RateLimitQPS:     getEnvAsInt("RATE_LIMIT_QPS", 200),
	}
	if c.APIBase == "" {
		c.APIBase = "/api"
	}
	if c.Radius.Max < c.Radius.Min {
		c.Radius.Min, c.Radius.Max = c.Radius.Max, c.Radius.Min
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// 解析失败或非正数时回退到默认值
func getEnvAsInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return defaultVal
}
