package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
	DriverRedis    = "redis"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN"`

	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"postgres"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	StateBackend  string        `env:"STATE_BACKEND" envDefault:"postgres"`
	RedisURL      string        `env:"REDIS_URL"`
	StateTTL      time.Duration `env:"STATE_TTL" envDefault:"72h"`

	SpreadsheetID            string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	RawAdminIDs string `env:"ADMIN_TG_IDS"`
	AdminTGIDs  map[int64]bool

	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL string `env:"BASE_PUBLIC_URL"`
	ExportSecret  string `env:"EXPORT_SECRET"`

	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Timezone    string `env:"TIMEZONE" envDefault:"Asia/Tashkent"`

	Workers           int           `env:"WORKERS" envDefault:"8"`
	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" envDefault:"35ms"`
	ReminderInterval  time.Duration `env:"REMINDER_INTERVAL" envDefault:"30m"`
	ReminderWindow    time.Duration `env:"REMINDER_WINDOW" envDefault:"24h"`
	ConsentVersion    string        `env:"CONSENT_VERSION" envDefault:"1.0"`
}

// FromEnv reads .env when present, then the process environment.
func FromEnv() (Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(c.BasePublicURL), "/")
	c.AdminTGIDs = parseAdminIDs(c.RawAdminIDs)

	if c.TelegramToken == "" {
		return c, fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return c, fmt.Errorf("DATABASE_URL is empty")
		}
	case DriverMemory:
	default:
		return c, fmt.Errorf("STORAGE_DRIVER %q is not supported", c.StorageDriver)
	}
	switch c.StateBackend {
	case DriverPostgres:
		if c.StorageDriver != DriverPostgres {
			return c, fmt.Errorf("STATE_BACKEND=postgres needs STORAGE_DRIVER=postgres")
		}
	case DriverRedis:
		if c.RedisURL == "" {
			return c, fmt.Errorf("REDIS_URL is empty")
		}
	case DriverMemory:
	default:
		return c, fmt.Errorf("STATE_BACKEND %q is not supported", c.StateBackend)
	}
	if (c.SpreadsheetID == "") != (c.GoogleServiceAccountJSON == "") {
		return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON must be set together")
	}
	if c.ExportSecret == "" {
		c.ExportSecret = c.TelegramToken
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return c, nil
}

// SheetsEnabled reports whether the spreadsheet mirror is configured.
func (c Config) SheetsEnabled() bool {
	return c.SpreadsheetID != "" && c.GoogleServiceAccountJSON != ""
}

// Location resolves Timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return m
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
