package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Variables already set win. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		slog.Debug("loaded env file", "path", p)
	}
	return nil
}

// ApplyEnv overrides fields from PDSIM_* environment variables.
func (c *Config) ApplyEnv() {
	c.Run.Seed = envInt64OrDefault("PDSIM_SEED", c.Run.Seed)
	c.Run.Ticks = envIntOrDefault("PDSIM_TICKS", c.Run.Ticks)
	c.Run.LogLevel = envOrDefault("PDSIM_LOG_LEVEL", c.Run.LogLevel)
	c.Storage.Driver = envOrDefault("PDSIM_DB_DRIVER", c.Storage.Driver)
	c.Storage.DSN = envOrDefault("PDSIM_DB_DSN", c.Storage.DSN)
	c.API.Port = envIntOrDefault("PDSIM_API_PORT", c.API.Port)
	c.API.AdminKey = envOrDefault("PDSIM_ADMIN_KEY", c.API.AdminKey)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return defaultVal
}

func envInt64OrDefault(key string, defaultVal int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		slog.Warn("ignoring non-integer env value", "key", key, "value", v)
	}
	return defaultVal
}
