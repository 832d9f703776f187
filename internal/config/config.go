// Package config loads user configuration from a YAML file with
// environment-variable fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Engine selects the chat backend: "local" or "remote".
	Engine string       `mapstructure:"engine"`
	Local  LocalConfig  `mapstructure:"local"`
	Remote RemoteConfig `mapstructure:"remote"`
	Serve  ServeConfig  `mapstructure:"serve"`
	Stream StreamConfig `mapstructure:"stream"`
}

// LocalConfig points at the local inference runtime.
type LocalConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// RemoteConfig points at an OpenAI-compatible chat-completions API.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// ServeConfig configures the API proxy server. An empty UpstreamURL
// falls back to the remote base URL.
type ServeConfig struct {
	Addr        string `mapstructure:"addr"`
	UpstreamURL string `mapstructure:"upstream_url"`
}

// StreamConfig overrides the streaming heuristics; zero values keep the
// defaults.
type StreamConfig struct {
	MaxLength                int           `mapstructure:"max_length"`
	DuplicateThreshold       float64       `mapstructure:"duplicate_threshold"`
	QualityCheckInterval     int           `mapstructure:"quality_check_interval"`
	MinChunkLength           int           `mapstructure:"min_chunk_length"`
	MaxConsecutiveDuplicates int           `mapstructure:"max_consecutive_duplicates"`
	FlushChars               int           `mapstructure:"flush_chars"`
	FlushInterval            time.Duration `mapstructure:"flush_interval"`
}

func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config dir: %w", err)
	}

	configPath := filepath.Join(configDir, "webchat")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configPath)
	viper.AddConfigPath(".")

	// Set defaults
	viper.SetDefault("engine", "remote")
	viper.SetDefault("local.model", "qwen2.5-3b-instruct-q4")
	viper.SetDefault("local.base_url", "http://127.0.0.1:8580")
	viper.SetDefault("remote.base_url", "https://api.openai.com")
	viper.SetDefault("remote.model", "gpt-4o-mini")
	viper.SetDefault("serve.addr", ":8080")

	// Read config file (optional - won't error if missing)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Remote.APIKey = expandEnv(cfg.Remote.APIKey)
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	cfg.Normalize()
	return &cfg, nil
}

// Normalize resolves the effective engine mode: remote without a
// credential degrades to local so the app always starts usable.
func (c *Config) Normalize() {
	if c.Engine == "" {
		c.Engine = "remote"
	}
	if c.Engine == "remote" && c.Remote.APIKey == "" {
		c.Engine = "local"
	}
}

// ApplyOverrides applies command-line overrides on top of the loaded
// config. Empty values leave the config untouched.
func (c *Config) ApplyOverrides(engine, model string) {
	if engine != "" {
		c.Engine = engine
	}
	if model == "" {
		return
	}
	switch c.Engine {
	case "local":
		c.Local.Model = model
	default:
		c.Remote.Model = model
	}
}

// expandEnv expands ${VAR} or $VAR in a string
func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// GetConfigPath returns the path where the config file should be located
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "webchat", "config.yaml"), nil
}

// Exists returns true if a config file exists
func Exists() bool {
	path, err := GetConfigPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// Save writes the config to disk
func Save(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`engine: %s

local:
  model: %s
  base_url: %s

remote:
  base_url: %s
  model: %s
`, cfg.Engine, cfg.Local.Model, cfg.Local.BaseURL, cfg.Remote.BaseURL, cfg.Remote.Model)

	return os.WriteFile(path, []byte(content), 0600)
}
