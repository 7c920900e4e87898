package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Scan    ScanConfig
	Ollama  OllamaConfig
	Watch   WatchConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir  string
	Backend  string // "sqlite" or "redis"
	RedisURL string
}

type ScanConfig struct {
	Provider     string // "gemini", "openai" or "local"
	Model        string // empty selects the provider default
	Language     string
	Timeout      string
	GeminiAPIKey string
	OpenAIAPIKey string
}

type OllamaConfig struct {
	BaseURL string
}

type WatchConfig struct {
	Schedule string // cron spec; empty disables scheduled scans
}

type LogConfig struct {
	Level string
}

const defaultScanTimeout = 2 * time.Minute

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
			Backend: "sqlite",
		},
		Scan: ScanConfig{
			Provider: "gemini",
			Language: "English",
			Timeout:  defaultScanTimeout.String(),
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ScanTimeout parses Scan.Timeout, falling back to two minutes.
func (c Config) ScanTimeout() time.Duration {
	d, err := time.ParseDuration(c.Scan.Timeout)
	if err != nil || d <= 0 {
		return defaultScanTimeout
	}
	return d
}

// LogLevel maps Log.Level to a slog level; unknown values mean info.
func (c Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.jobwatch.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/jobwatch/config.json
// and secrets fall back to $XDG_DATA_HOME/jobwatch/secrets.json.
//
// Environment variables (JOBWATCH_*) override backend values on all
// platforms. A .env file in the working directory is loaded first; it never
// overrides variables already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	switch cfg.Storage.Backend {
	case "sqlite", "redis":
	default:
		return Config{}, fmt.Errorf("invalid storage.backend %q: want sqlite or redis", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "redis" && cfg.Storage.RedisURL == "" {
		return Config{}, fmt.Errorf("storage.backend is redis but storage.redis_url is empty")
	}
	return cfg, nil
}

// applySecrets fills secrets still empty after env overrides from the
// platform secret store.
func applySecrets(cfg *Config, kc Keychain) {
	for _, s := range specs {
		if !s.secret() || *s.str(cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account); err == nil && v != "" {
			*s.str(cfg) = v
		}
	}
}
