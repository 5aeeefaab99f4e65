package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort     string
	ServerHost     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers []string
	HarvestTopic string

	// Content API
	APIBaseURL      string
	APIClientID     string
	APIClientSecret string
	APIRedirectURL  string
	RequestTimeout  time.Duration

	// Harvester
	SpotSeedPath      string
	DiscoveryRadiusM  int
	AdhocQueue        string
	WorkerConcurrency int
}

func Load() *Config {
	return &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 1*1024*1024)),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "geopulse"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "geopulse123"),
		PostgresDB:       getEnv("POSTGRES_DB", "geopulse"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers: getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		HarvestTopic: getEnv("HARVEST_TOPIC", ""),

		APIBaseURL:      getEnv("CONTENT_API_BASE_URL", "https://api.instagram.com"),
		APIClientID:     getEnv("CONTENT_API_CLIENT_ID", ""),
		APIClientSecret: getEnv("CONTENT_API_CLIENT_SECRET", ""),
		APIRedirectURL:  getEnv("CONTENT_API_REDIRECT_URL", ""),
		RequestTimeout:  getDuration("CONTENT_API_TIMEOUT", 30*time.Second),

		SpotSeedPath:      getEnv("SPOT_SEED_PATH", ""),
		DiscoveryRadiusM:  getIntEnv("DISCOVERY_RADIUS_METERS", 750),
		AdhocQueue:        getEnv("ADHOC_QUEUE", "adhoc"),
		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 2),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
