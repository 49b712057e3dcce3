package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultInitialQuery is the first message sent on verification. The remote
// assistant answers it with the welcome shown on the conversation screen.
const DefaultInitialQuery = "Greet me by name with a short, personalized welcome to the hotel. " +
	"If my check-in or check-out date is today or tomorrow, mention it and remind me of the check-in or check-out time."

// Config holds the application configuration
type Config struct {
	Assistant AssistantConfig
	Session   SessionConfig
	Server    ServerConfig
	LLM       LLMConfig
	Concierge ConciergeConfig
	Log       LogConfig
}

// AssistantConfig configures the client side of the /ask contract.
type AssistantConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	InitialQuery string        `mapstructure:"initial_query"`
}

// SessionConfig selects and configures the session store backend.
type SessionConfig struct {
	Backend       string        `mapstructure:"backend"`
	TabID         string        `mapstructure:"tab_id"`
	SQLitePath    string        `mapstructure:"sqlite_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           string   `mapstructure:"port"`
	RatePerMinute  int      `mapstructure:"rate_per_minute"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	Temperature  float32 `mapstructure:"temperature"`
	SystemPrompt string  `mapstructure:"system_prompt"`
	MaxTurns     int     `mapstructure:"max_turns"`

	// EmbeddingModel ranks guide passages. Empty disables semantic search.
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// ConciergeConfig points the concierge at its data files.
type ConciergeConfig struct {
	BookingsPath string `mapstructure:"bookings_path"`
	GuidesDir    string `mapstructure:"guides_dir"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

var defaults = map[string]any{
	"assistant.base_url":      "",
	"assistant.timeout":       60 * time.Second,
	"assistant.initial_query": DefaultInitialQuery,

	"session.backend":        "memory",
	"session.tab_id":         "",
	"session.sqlite_path":    "session.db",
	"session.redis_addr":     "localhost:6379",
	"session.redis_password": "",
	"session.redis_db":       0,
	"session.ttl":            12 * time.Hour,

	"server.host":            "0.0.0.0",
	"server.port":            "5001",
	"server.rate_per_minute": 120,
	"server.allowed_origins": []string{"*"},

	"llm.base_url":        "https://api.openai.com/v1",
	"llm.api_key":         "",
	"llm.model":           "gpt-3.5-turbo",
	"llm.temperature":     0.7,
	"llm.system_prompt":   "",
	"llm.max_turns":       5,
	"llm.embedding_model": "text-embedding-ada-002",

	"concierge.bookings_path": "booking/bookings.json",
	"concierge.guides_dir":    "guest_guides",

	"log.level": "info",
	"log.file":  "",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level": "log.level",
	"base-url":  "assistant.base_url",
	"tab":       "session.tab_id",
	"backend":   "session.backend",
	"port":      "server.port",
}

// Flags registers the flags understood by Load on fs.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML configuration file")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("base-url", "", "assistant base URL")
	fs.String("tab", "", "tab id whose session should be resumed")
	fs.String("backend", "", "session backend (memory, sqlite, redis)")
	fs.String("port", "", "server port")
}

// Load loads the configuration from config.yaml, GUEST_* environment
// variables and, when fs is not nil, command-line flags.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix("GUEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names accepted for the API key and port.
	_ = v.BindEnv("llm.api_key", "GUEST_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("server.port", "GUEST_SERVER_PORT", "PORT")

	path := os.Getenv("CONFIG_PATH")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			path = f.Value.String()
		}
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("config: bind flag %q: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &cfg, nil
}

// Validate reports configuration the guest client cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Assistant.BaseURL) == "" {
		return errors.New("config: assistant.base_url must be set")
	}
	switch c.Session.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("config: unsupported session backend %q", c.Session.Backend)
	}
	return nil
}

// Addr returns the host:port the concierge listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}
