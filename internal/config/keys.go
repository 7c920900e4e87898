package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ConfigBackend is the platform store for non-secret settings: UserDefaults
// on macOS, a JSON file elsewhere.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

// setting binds a dotted key to one Config field. Exactly one of str and num
// is set. Secrets carry the secret store account they live under and are
// never read from or written to the backend.
type setting struct {
	key     string
	env     string
	account string
	str     func(*Config) *string
	num     func(*Config) *int
}

func text(key string, field func(*Config) *string) setting {
	return setting{key: key, env: envName(key), str: field}
}

func number(key string, field func(*Config) *int) setting {
	return setting{key: key, env: envName(key), num: field}
}

func secret(key, env, account string, field func(*Config) *string) setting {
	return setting{key: key, env: env, account: account, str: field}
}

// envName maps "scan.model" to JOBWATCH_SCAN_MODEL.
func envName(key string) string {
	return "JOBWATCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

var specs = []setting{
	number("server.port", func(c *Config) *int { return &c.Server.Port }),
	text("storage.data_dir", func(c *Config) *string { return &c.Storage.DataDir }),
	text("storage.backend", func(c *Config) *string { return &c.Storage.Backend }),
	text("storage.redis_url", func(c *Config) *string { return &c.Storage.RedisURL }),
	text("scan.provider", func(c *Config) *string { return &c.Scan.Provider }),
	text("scan.model", func(c *Config) *string { return &c.Scan.Model }),
	text("scan.language", func(c *Config) *string { return &c.Scan.Language }),
	text("scan.timeout", func(c *Config) *string { return &c.Scan.Timeout }),
	secret("scan.gemini_api_key", "JOBWATCH_GEMINI_API_KEY", "gemini_api_key",
		func(c *Config) *string { return &c.Scan.GeminiAPIKey }),
	secret("scan.openai_api_key", "JOBWATCH_OPENAI_API_KEY", "openai_api_key",
		func(c *Config) *string { return &c.Scan.OpenAIAPIKey }),
	text("ollama.base_url", func(c *Config) *string { return &c.Ollama.BaseURL }),
	text("watch.schedule", func(c *Config) *string { return &c.Watch.Schedule }),
	text("log.level", func(c *Config) *string { return &c.Log.Level }),
}

func (s setting) secret() bool { return s.account != "" }

// value renders the current field value.
func (s setting) value(cfg Config) string {
	if s.num != nil {
		return strconv.Itoa(*s.num(&cfg))
	}
	return *s.str(&cfg)
}

// parse assigns raw to the field, converting it for integer settings.
func (s setting) parse(cfg *Config, raw string) error {
	if s.num == nil {
		*s.str(cfg) = raw
		return nil
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %w", s.key, err)
	}
	*s.num(cfg) = i
	return nil
}

// load copies the backend value into cfg when one is stored.
func (s setting) load(cfg *Config, b ConfigBackend) error {
	if s.num != nil {
		v, ok, err := b.GetInt(s.key)
		if err == nil && ok {
			*s.num(cfg) = v
		}
		return err
	}
	v, ok, err := b.GetString(s.key)
	if err == nil && ok {
		*s.str(cfg) = v
	}
	return err
}

// store writes raw to the backend in the setting's type.
func (s setting) store(b ConfigBackend, raw string) error {
	if s.num == nil {
		return b.SetString(s.key, raw)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid integer value for %s: %w", s.key, err)
	}
	return b.SetInt(s.key, i)
}

func lookupSpec(key string) (setting, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret() {
			continue
		}
		if err := s.load(cfg, b); err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
	}
	return nil
}

// applyEnvOverrides lets JOBWATCH_* variables win over the backend. A bad
// integer is reported and the earlier value kept.
func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw, ok := os.LookupEnv(s.env)
		if !ok || raw == "" {
			continue
		}
		if err := s.parse(cfg, raw); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] ignoring %s: %v\n", s.env, err)
		}
	}
}
