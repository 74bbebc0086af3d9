// Package config читает конфигурацию процессов из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Client — конфигурация консоли администрирования сайдкаров.
type Client struct {
	APIURL        string        `env:"SIDECAR_API_URL" envDefault:"http://127.0.0.1:9000"`
	Username      string        `env:"SIDECAR_API_USERNAME"`
	Password      string        `env:"SIDECAR_API_PASSWORD"`
	PageSize      int           `env:"SIDECAR_PAGE_SIZE" envDefault:"50"`
	RetryInterval time.Duration `env:"SIDECAR_RETRY_INTERVAL" envDefault:"5s"`
	PollInterval  time.Duration `env:"SIDECAR_COUNT_POLL_INTERVAL" envDefault:"30s"`
	OTLPEndpoint  string        `env:"SIDECAR_OTEL_ENDPOINT"`
	LogLevel      string        `env:"SIDECAR_LOG_LEVEL" envDefault:"info"`
}

// Server — конфигурация HTTP API сайдкаров.
type Server struct {
	ListenAddr      string        `env:"SIDECAR_LISTEN_ADDR" envDefault:":9000"`
	DatabaseURL     string        `env:"SIDECAR_DATABASE_URL"`
	ShutdownTimeout time.Duration `env:"SIDECAR_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OTLPEndpoint    string        `env:"SIDECAR_OTEL_ENDPOINT"`
	LogLevel        string        `env:"SIDECAR_LOG_LEVEL" envDefault:"info"`
}

// ParseEnv заполняет target из переменных окружения.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("не удалось прочитать окружение: %w", err)
	}
	return nil
}

// LoadClient читает конфигурацию консоли.
func LoadClient() (Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}
	if cfg.PageSize < 1 {
		return Client{}, fmt.Errorf("размер страницы должен быть положительным: %d", cfg.PageSize)
	}
	if cfg.RetryInterval <= 0 || cfg.PollInterval <= 0 {
		return Client{}, errors.New("интервалы повтора и опроса должны быть положительными")
	}
	return cfg, nil
}

// LoadServer читает конфигурацию API.
func LoadServer() (Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Level разбирает уровень логирования. Неизвестные значения дают info.
func Level(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
