// Package config содержит логику чтения конфигурации движка начислений.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingSecret возвращается, если не задан секрет вебхука или токен управления.
var ErrMissingSecret = errors.New("webhook secret and control token are required")

// Config содержит параметры конфигурации движка начислений.
type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	WebhookSecret         string        `env:"WEBHOOK_SECRET"`
	ControlToken          string        `env:"CONTROL_TOKEN"`
	SettlementSchedule    string        `env:"SETTLEMENT_SCHEDULE"`
	ApprovalSweepInterval time.Duration `env:"APPROVAL_SWEEP_INTERVAL"`
	LogLevel              string        `env:"LOG_LEVEL" envDefault:"info"`

	BaseCurrency            string `env:"BASE_CURRENCY" envDefault:"USD"`
	TopSellerThresholdCents int64  `env:"TOP_SELLER_THRESHOLD_CENTS" envDefault:"1000000"`
	OverflowStepCents       int64  `env:"OVERFLOW_STEP_CENTS" envDefault:"500000"`
	OverflowStepBonusCents  int64  `env:"OVERFLOW_STEP_BONUS_CENTS" envDefault:"300000"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envWebhookSecret := cfg.WebhookSecret
	envControlToken := cfg.ControlToken
	envSchedule := cfg.SettlementSchedule
	envSweepInterval := cfg.ApprovalSweepInterval

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory store when empty")
	flag.StringVar(&cfg.WebhookSecret, "w", "", "HMAC secret for order webhooks")
	flag.StringVar(&cfg.ControlToken, "t", "", "bearer token for control endpoints")
	flag.StringVar(&cfg.SettlementSchedule, "s", "0 3 1 * *", "cron schedule of the monthly settlement")
	flag.DurationVar(&cfg.ApprovalSweepInterval, "i", time.Hour, "interval of the commission approval sweep")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envWebhookSecret != "" {
		cfg.WebhookSecret = envWebhookSecret
	}
	if envControlToken != "" {
		cfg.ControlToken = envControlToken
	}
	if envSchedule != "" {
		cfg.SettlementSchedule = envSchedule
	}
	if envSweepInterval != 0 {
		cfg.ApprovalSweepInterval = envSweepInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	cfg.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.WebhookSecret == "" || c.ControlToken == "" {
		return ErrMissingSecret
	}
	if c.ApprovalSweepInterval < 0 {
		return fmt.Errorf("approval sweep interval must not be negative: %s", c.ApprovalSweepInterval)
	}
	if c.OverflowStepCents <= 0 || c.TopSellerThresholdCents <= 0 || c.OverflowStepBonusCents < 0 {
		return fmt.Errorf("invalid overflow rule: threshold %d, step %d, step bonus %d",
			c.TopSellerThresholdCents, c.OverflowStepCents, c.OverflowStepBonusCents)
	}
	if len(c.BaseCurrency) != 3 {
		return fmt.Errorf("invalid base currency %q", c.BaseCurrency)
	}
	return nil
}
