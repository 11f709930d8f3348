package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/nicebartender/deskassist-server/api"
)

// Config holds server configuration. Environment variables provide the
// defaults and flags override them.
type Config struct {
	ListenAddr       string  `env:"DESKASSIST_ADDR"`
	DBPath           string  `env:"DESKASSIST_DB"`
	RegistryPath     string  `env:"DESKASSIST_REGISTRY"`
	SearchURL        string  `env:"DESKASSIST_SEARCH_URL"`
	RateRPS          float64 `env:"DESKASSIST_RATE_LIMIT_RPS"    envDefault:"5"`
	RateBurst        int     `env:"DESKASSIST_RATE_LIMIT_BURST"  envDefault:"10"`
	LogLevel         string  `env:"DESKASSIST_LOG_LEVEL"         envDefault:"info"`
	JournalRetention int     `env:"DESKASSIST_JOURNAL_RETENTION" envDefault:"1000"`
}

// LoadConfig parses the environment, then args against fs.
func LoadConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultAddr()
	}

	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "Listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite journal path (empty keeps it in memory)")
	fs.StringVar(&cfg.RegistryPath, "registry", cfg.RegistryPath, "YAML app registry (empty uses the built-in one)")
	fs.StringVar(&cfg.SearchURL, "search-url", cfg.SearchURL, "Search URL prefix the escaped query is appended to")
	fs.Float64Var(&cfg.RateRPS, "rate-limit", cfg.RateRPS, "Launch requests per second per client (0 disables)")
	fs.IntVar(&cfg.RateBurst, "rate-burst", cfg.RateBurst, "Launch request burst per client")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.IntVar(&cfg.JournalRetention, "journal-retention", cfg.JournalRetention, "Journal rows to keep (0 keeps all)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) RateLimit() api.RateLimit {
	return api.RateLimit{RPS: c.RateRPS, Burst: c.RateBurst}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func defaultAddr() string {
	// Hosting platforms set PORT
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return api.DefaultAddress
}
