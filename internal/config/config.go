// Package config содержит логику чтения конфигурации сервисов.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Service задаёт имя сервиса, для которого читается конфигурация.
type Service string

const (
	ServiceUser    Service = "user"
	ServiceOrder   Service = "order"
	ServicePayment Service = "payment"
)

// Адреса сервисов по умолчанию.
const (
	DefaultUserAddress    = "localhost:8001"
	DefaultOrderAddress   = "localhost:8002"
	DefaultPaymentAddress = "localhost:8003"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	Service Service

	RunAddress          string `env:"RUN_ADDRESS"`
	DatabaseURI         string `env:"DATABASE_URI"`
	UserServiceAddress  string `env:"USER_SERVICE_ADDRESS"`
	OrderServiceAddress string `env:"ORDER_SERVICE_ADDRESS"`
	CollectorEndpoint   string `env:"COLLECTOR_ENDPOINT"`

	RemoteTimeout time.Duration `env:"REMOTE_TIMEOUT" envDefault:"2s"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile       string        `env:"LOG_FILE"`

	// Seed задаёт генератор случайных решений, при 0 берётся текущее время.
	Seed               int64         `env:"SEED"`
	UserFaultRate      float64       `env:"USER_FAULT_RATE"`
	OrderFaultRate     float64       `env:"ORDER_FAULT_RATE" envDefault:"0.05"`
	PaymentFailureRate float64       `env:"PAYMENT_FAILURE_RATE" envDefault:"0.05"`
	UserLatency        time.Duration `env:"USER_LATENCY"`
	PaymentLatency     time.Duration `env:"PAYMENT_LATENCY"`

	// Имитация при выдаче сводки оплат пользователя.
	LookupFaultRate float64       `env:"PAYMENT_LOOKUP_FAULT_RATE" envDefault:"0.05"`
	LookupLatency   time.Duration `env:"PAYMENT_LOOKUP_LATENCY" envDefault:"90ms"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse(service Service) (*Config, error) {
	cfg := &Config{Service: service}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress(service), "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (postgres://..., sqlite://path, empty for in-memory)")
	flag.StringVar(&cfg.UserServiceAddress, "u", DefaultUserAddress, "user service address")
	flag.StringVar(&cfg.OrderServiceAddress, "o", DefaultOrderAddress, "order service address")
	flag.StringVar(&cfg.CollectorEndpoint, "c", "", "OTLP/HTTP collector endpoint, empty disables span export")

	flag.Parse()

	// env.Parse перезаписывает только поля, для которых задана переменная окружения.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress(service)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultRunAddress(service Service) string {
	switch service {
	case ServiceOrder:
		return DefaultOrderAddress
	case ServicePayment:
		return DefaultPaymentAddress
	default:
		return DefaultUserAddress
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.RemoteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REMOTE_TIMEOUT must be positive, got %s", c.RemoteTimeout))
	}
	rates := map[string]float64{
		"USER_FAULT_RATE":           c.UserFaultRate,
		"ORDER_FAULT_RATE":          c.OrderFaultRate,
		"PAYMENT_FAILURE_RATE":      c.PaymentFailureRate,
		"PAYMENT_LOOKUP_FAULT_RATE": c.LookupFaultRate,
	}
	for name, v := range rates {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, v))
		}
	}
	if c.UserLatency < 0 || c.PaymentLatency < 0 || c.LookupLatency < 0 {
		errs = append(errs, errors.New("latency must not be negative"))
	}
	return errors.Join(errs...)
}
