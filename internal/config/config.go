// Package config loads broker settings from the environment, with positional
// CLI arguments taking precedence for the port and log path.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"chatbroker/internal/proto"
)

// Config holds all broker settings.
type Config struct {
	Host          string
	Port          int
	LogPath       string
	LogLevel      string
	WriteTimeout  time.Duration
	SendQueueSize int
	MaxLineBytes  int
	OpsAddr       string // empty disables the ops HTTP sidecar
	QuietPrefix   string // empty disables presence-broadcast suppression
}

// Load reads configuration from environment variables, loading an optional
// .env file first. Positional CLI arguments take precedence: args[0] is the
// port, args[1] the log path. A CLI port shadows CHAT_PORT entirely, so a
// malformed env value cannot fail a run that names its port explicitly.
func Load(args ...string) (*Config, error) {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		Host:        getEnv("CHAT_HOST", "0.0.0.0"),
		LogPath:     getEnv("CHAT_LOG_PATH", "chat.log"),
		LogLevel:    getEnv("CHAT_LOG_LEVEL", "info"),
		OpsAddr:     getEnv("CHAT_OPS_ADDR", ""),
		QuietPrefix: getEnv("CHAT_QUIET_PREFIX", ""),
	}

	var err error
	if len(args) >= 1 {
		if cfg.Port, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("invalid port: %s", args[0])
		}
	} else if cfg.Port, err = getEnvInt("CHAT_PORT", 5555); err != nil {
		return nil, err
	}
	if len(args) >= 2 {
		cfg.LogPath = args[1]
	}
	if cfg.SendQueueSize, err = getEnvInt("CHAT_SEND_QUEUE", 256); err != nil {
		return nil, err
	}
	if cfg.MaxLineBytes, err = getEnvInt("CHAT_MAX_LINE_BYTES", proto.DefaultMaxLineBytes); err != nil {
		return nil, err
	}
	if cfg.WriteTimeout, err = getEnvDuration("CHAT_WRITE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("CHAT_PORT out of range: %d", cfg.Port)
	}
	return cfg, nil
}

// Addr is the listener address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}
