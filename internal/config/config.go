package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// Feed backends understood by the server
const (
	FeedBackendRedis  = "redis"
	FeedBackendMemory = "memory"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Redis       RedisConfig
	Viewport    ViewportConfig
	FeedBackend string
	LayoutsPath string
	LogLevel    string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         int
	ReadTimeout  int
	WriteTimeout int
}

// RedisConfig holds Redis-related configuration
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // prepended to every hash key and channel name
}

// ViewportConfig holds the drawing-surface sizing knobs
type ViewportConfig struct {
	Padding           float64
	MaxWidthFraction  float64
	MaxHeightFraction float64
	DeviceWidth       float64 // used when a request does not carry its own display area
	DeviceHeight      float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (optional)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Viewport: ViewportConfig{
			Padding:           getEnvAsFloat("VIEWPORT_PADDING", 15),
			MaxWidthFraction:  getEnvAsFloat("VIEWPORT_MAX_WIDTH_FRACTION", 0.95),
			MaxHeightFraction: getEnvAsFloat("VIEWPORT_MAX_HEIGHT_FRACTION", 0.6),
			DeviceWidth:       getEnvAsFloat("DEVICE_WIDTH", 390),
			DeviceHeight:      getEnvAsFloat("DEVICE_HEIGHT", 844),
		},
		FeedBackend: strings.ToLower(getEnv("FEED_BACKEND", FeedBackendRedis)),
		LayoutsPath: getEnv("LAYOUTS_PATH", "/opt/lotmap/layouts"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	redisCfg, err := getRedisConfig()
	if err != nil {
		return nil, err
	}
	cfg.Redis = redisCfg

	return cfg, nil
}

// getRedisConfig resolves the Redis connection. REDIS_URL wins when set and
// may carry credentials and a database; otherwise REDIS_ADDR, REDIS_PASSWORD
// and REDIS_DB apply.
func getRedisConfig() (RedisConfig, error) {
	cfg := RedisConfig{
		Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        getEnvAsInt("REDIS_DB", 0),
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "lotmap:"),
	}

	rawURL := os.Getenv("REDIS_URL")
	if rawURL == "" {
		return cfg, nil
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "redis://" + rawURL
	}

	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	cfg.Addr = opts.Addr
	if opts.Password != "" {
		cfg.Password = opts.Password
	}
	if opts.DB != 0 {
		cfg.DB = opts.DB
	}
	return cfg, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvAsFloat gets an environment variable as float64 or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
