package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"ip-studio-server/internal/utils"
)

// Config содержит конфигурацию сервера пайплайна.
type Config struct {
	// Настройки HTTP
	HTTPPort       string        `envconfig:"HTTP_PORT" default:"8085"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"360s"`

	// Настройки логирования
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Настройки AI (OpenAI-совместимый API)
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:""`
	AIChatModel  string        `envconfig:"AI_CHAT_MODEL" default:"gpt-4o-mini"`
	AIImageModel string        `envconfig:"AI_IMAGE_MODEL" default:"dall-e-3"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"300s"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Настройки сервиса конвертации изображения в 3D
	ConversionBaseLocations []string      `envconfig:"CONVERSION_BASE_LOCATIONS" default:"https://api.meshy.ai/openapi/v1,https://api.meshy.ai/v2"`
	ConversionTimeout       time.Duration `envconfig:"CONVERSION_TIMEOUT" default:"30s"`
	ConversionPollInterval  time.Duration `envconfig:"CONVERSION_POLL_INTERVAL" default:"5s"`
	ConversionMaxWait       time.Duration `envconfig:"CONVERSION_MAX_WAIT" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	ConversionAPIKey string

	// Зеркало сессий (Result Sink)
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"24h"`
	SessionCacheSize int           `envconfig:"SESSION_CACHE_SIZE" default:"1000"`
	RedisAddr        string        `envconfig:"REDIS_ADDR" default:""` // пусто = без Redis-зеркала
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD" default:""`
	RabbitMQURL      string        `envconfig:"RABBITMQ_URL" default:""` // пусто = без публикации событий
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.AIAPIKey, loadErr = utils.ReadSecret("openai_api_key", "OPENAI_API_KEY")
	if loadErr != nil {
		return nil, loadErr
	}
	cfg.ConversionAPIKey, loadErr = utils.ReadSecret("meshy_api_key", "MESHY_API_KEY")
	if loadErr != nil {
		return nil, loadErr
	}

	// Логируем загруженную конфигурацию (кроме ключей)
	log.Printf("Конфигурация загружена (секреты из файлов или окружения):")
	log.Printf("  HTTP Port: %s", cfg.HTTPPort)
	log.Printf("  AI Base URL: %s", orDefault(cfg.AIBaseURL, "[openai default]"))
	log.Printf("  AI Chat Model: %s", cfg.AIChatModel)
	log.Printf("  AI Image Model: %s", cfg.AIImageModel)
	log.Printf("  AI Timeout: %v", cfg.AITimeout)
	log.Printf("  Conversion Base Locations: %v", cfg.ConversionBaseLocations)
	log.Printf("  Conversion Poll Interval: %v", cfg.ConversionPollInterval)
	log.Printf("  Conversion Max Wait: %v", cfg.ConversionMaxWait)
	log.Printf("  Session TTL: %v", cfg.SessionTTL)
	log.Printf("  Session Cache Size: %d", cfg.SessionCacheSize)
	log.Printf("  Redis Addr: %s", orDefault(cfg.RedisAddr, "[disabled]"))
	log.Printf("  RabbitMQ URL: %s", orDefault(cfg.RabbitMQURL, "[disabled]"))
	log.Println("  AI API Key: [ЗАГРУЖЕН]")
	log.Println("  Conversion API Key: [ЗАГРУЖЕН]")

	return &cfg, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
