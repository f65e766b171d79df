package config

import (
	"os"
	"strconv"
	"strings"
)

// Config представляет конфигурацию приложения
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	Kafka     KafkaConfig     `json:"kafka"`
	Logger    LoggerConfig    `json:"logger"`
	Cache     CacheConfig     `json:"cache"`
	Auth      AuthConfig      `json:"auth"`
	Tracking  TrackingConfig  `json:"tracking"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

// ServerConfig представляет конфигурацию HTTP сервера
type ServerConfig struct {
	Port         string `json:"port"`
	Host         string `json:"host"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
}

// DatabaseConfig представляет конфигурацию базы данных
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// KafkaConfig представляет конфигурацию Kafka
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  Topics   `json:"topics"`
}

// Topics представляет список топиков Kafka
type Topics struct {
	Parcels   string `json:"parcels"`
	Couriers  string `json:"couriers"`
	Locations string `json:"locations"`
}

// LoggerConfig представляет конфигурацию логгера
type LoggerConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

// CacheConfig представляет конфигурацию кеширования
type CacheConfig struct {
	Enabled    bool `json:"enabled"`
	DefaultTTL int  `json:"default_ttl"`  // TTL для обычных данных (секунды)
	HotDataTTL int  `json:"hot_data_ttl"` // TTL для горячих данных (секунды)
}

// AuthConfig представляет конфигурацию проверки токенов
type AuthConfig struct {
	Secret   string `json:"secret"`
	TokenTTL int    `json:"token_ttl"` // срок жизни токена (секунды)
}

// TrackingConfig представляет конфигурацию геозонной оценки.
// Радиусы различаются: выход из зоны забора — более грубая проверка,
// чем прибытие к точке доставки.
type TrackingConfig struct {
	PickupRadiusKm   float64 `json:"pickup_radius_km"`
	DeliveryRadiusKm float64 `json:"delivery_radius_km"`
}

// RateLimitConfig представляет конфигурацию лимита обновлений позиции
type RateLimitConfig struct {
	Enabled    bool `json:"enabled"`
	UpdatesRPM int  `json:"updates_rpm"` // обновлений позиции в минуту на курьера
}

// Load загружает конфигурацию из переменных окружения
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "tracking_user"),
			Password: getEnv("DB_PASSWORD", "tracking_pass"),
			DBName:   getEnv("DB_NAME", "parcel_tracking"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", "parcel-tracking"),
			Topics: Topics{
				Parcels:   getEnv("KAFKA_TOPIC_PARCELS", "parcels"),
				Couriers:  getEnv("KAFKA_TOPIC_COURIERS", "couriers"),
				Locations: getEnv("KAFKA_TOPIC_LOCATIONS", "locations"),
			},
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			File:   getEnv("LOG_FILE", ""),
		},
		Cache: CacheConfig{
			Enabled:    getEnv("CACHE_ENABLED", "true") == "true",
			DefaultTTL: getEnvAsInt("CACHE_DEFAULT_TTL", 300), // 5 минут
			HotDataTTL: getEnvAsInt("CACHE_HOT_DATA_TTL", 60), // 1 минута
		},
		Auth: AuthConfig{
			Secret:   getEnv("AUTH_SECRET", "dev-secret-change-me"),
			TokenTTL: getEnvAsInt("AUTH_TOKEN_TTL", 86400), // 24 часа
		},
		Tracking: TrackingConfig{
			PickupRadiusKm:   getEnvAsFloat("TRACKING_PICKUP_RADIUS_KM", 0.3),
			DeliveryRadiusKm: getEnvAsFloat("TRACKING_DELIVERY_RADIUS_KM", 0.1),
		},
		RateLimit: RateLimitConfig{
			Enabled:    getEnv("RATE_LIMIT_ENABLED", "false") == "true",
			UpdatesRPM: getEnvAsInt("RATE_LIMIT_UPDATES_RPM", 120),
		},
	}
}

// getEnv получает значение переменной окружения с значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt получает значение переменной окружения как int с значением по умолчанию
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat получает значение переменной окружения как float64 с значением по умолчанию
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
