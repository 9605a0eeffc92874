package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdushakurob/getstuddy-backend/internal/pkg/envutil"
)

// Config aggregates everything the engine needs injected. Values come from
// the environment, with an optional YAML file (CONFIG_FILE) layered
// underneath for local development.
type Config struct {
	LogMode     string
	DatabaseURL string
	RedisAddr   string
	WorkDir     string
	DownloadTTL time.Duration
}

type fileConfig struct {
	LogMode         string `yaml:"log_mode"`
	DatabaseURL     string `yaml:"database_url"`
	RedisAddr       string `yaml:"redis_addr"`
	WorkDir         string `yaml:"work_dir"`
	DownloadTimeout string `yaml:"download_timeout"`
}

func LoadConfig() (Config, error) {
	cfg := Config{
		LogMode:     "dev",
		WorkDir:     "/tmp/getstuddy-resolve",
		DownloadTTL: 2 * time.Minute,
	}

	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if fc.LogMode != "" {
			cfg.LogMode = fc.LogMode
		}
		if fc.DatabaseURL != "" {
			cfg.DatabaseURL = fc.DatabaseURL
		}
		if fc.RedisAddr != "" {
			cfg.RedisAddr = fc.RedisAddr
		}
		if fc.WorkDir != "" {
			cfg.WorkDir = fc.WorkDir
		}
		if fc.DownloadTimeout != "" {
			d, err := time.ParseDuration(fc.DownloadTimeout)
			if err != nil {
				return Config{}, fmt.Errorf("parse download_timeout %q: %w", fc.DownloadTimeout, err)
			}
			cfg.DownloadTTL = d
		}
	}

	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.DatabaseURL = envutil.String("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.WorkDir = envutil.String("RESOLVE_WORK_DIR", cfg.WorkDir)
	cfg.DownloadTTL = envutil.Duration("DOWNLOAD_TIMEOUT", cfg.DownloadTTL)

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing DATABASE_URL")
	}
	return cfg, nil
}
