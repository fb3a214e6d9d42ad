package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	ServerPort     string        `env:"SERVER_PORT" envDefault:"8080"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Объектное хранилище (S3 или MinIO)
	S3 struct {
		Endpoint        string `env:"S3_ENDPOINT"`
		Region          string `env:"S3_REGION" envDefault:"us-east-1"`
		AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
		SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
		Bucket          string `env:"S3_BUCKET,required"`
		UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"true"`
		CreateBucket    bool   `env:"S3_CREATE_BUCKET" envDefault:"false"`
		MaxAttempts     int    `env:"STORE_MAX_ATTEMPTS" envDefault:"3"`
	}

	CDNBaseURL         string        `env:"CDN_BASE_URL"`
	PresignTTL         time.Duration `env:"PRESIGN_TTL" envDefault:"1h"`
	OptimizeKeyLock    bool          `env:"OPTIMIZE_KEY_LOCK" envDefault:"true"`
	MaxSourcePixels    int           `env:"MAX_SOURCE_PIXELS" envDefault:"100000000"`
	PresignConcurrency int           `env:"PRESIGN_CONCURRENCY" envDefault:"10"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// RabbitMQ нужен только для асинхронной оптимизации и режима worker
	RabbitMQ struct {
		RabbitMQURL       string `env:"RABBITMQ_URL"`
		RabbitMQQueueName string `env:"RABBITMQ_QUEUE_NAME" envDefault:"photo_optimize_queue"`
	}
}

// LoadConfig загружает конфигурацию из переменных окружения.
// В режиме разработки пытается загрузить .env файл.
func LoadConfig() (*Config, error) {
	if _, err := os.Stat(".env"); !os.IsNotExist(err) {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.S3.MaxAttempts < 1 {
		return fmt.Errorf("STORE_MAX_ATTEMPTS must be >= 1, got %d", c.S3.MaxAttempts)
	}
	if c.PresignTTL <= 0 {
		return fmt.Errorf("PRESIGN_TTL must be positive, got %s", c.PresignTTL)
	}
	if c.MaxSourcePixels < 1 {
		return fmt.Errorf("MAX_SOURCE_PIXELS must be >= 1, got %d", c.MaxSourcePixels)
	}
	if c.PresignConcurrency < 1 {
		c.PresignConcurrency = 1
	}
	return nil
}

// AsyncEnabled сообщает, задан ли брокер для фоновой оптимизации.
func (c *Config) AsyncEnabled() bool {
	return c.RabbitMQ.RabbitMQURL != ""
}
