package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Fetch   FetchConfig   `json:"fetch" yaml:"fetch"`
	Engine  EngineConfig  `json:"engine" yaml:"engine"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ServerConfig holds configuration for the HTTP listener
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	// ShutdownTimeout is how long in-flight requests get on shutdown
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// StorageConfig holds configuration for local image references
type StorageConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Root      string `json:"root" yaml:"root"`
}

// FetchConfig holds configuration for remote image downloads
type FetchConfig struct {
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	MaxBytes  int64    `json:"max_bytes" yaml:"max_bytes"`
	UserAgent string   `json:"user_agent" yaml:"user_agent"`
}

// EngineConfig selects and tunes the inference backend
type EngineConfig struct {
	Backend      string   `json:"backend" yaml:"backend"`
	URL          string   `json:"url" yaml:"url"`
	Model        string   `json:"model" yaml:"model"`
	AuthToken    string   `json:"auth_token" yaml:"auth_token"`
	MaxNewTokens int      `json:"max_new_tokens" yaml:"max_new_tokens"`
	Timeout      Duration `json:"timeout" yaml:"timeout"`
	SendFormat   string   `json:"send_format" yaml:"send_format"`
	SendSize     int      `json:"send_size" yaml:"send_size"`
	SendQuality  int      `json:"send_quality" yaml:"send_quality"`
	Serialize    bool     `json:"serialize" yaml:"serialize"`
}

// LoggingConfig holds configuration for the global logger
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	// Format is json, console or auto (console when stderr is a terminal)
	Format string `json:"format" yaml:"format"`
}

// Backends supported by the engine factory
const (
	BackendDeplot   = "deplot"
	BackendOllama   = "ollama"
	BackendLlamaCPP = "llamacpp"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:5000",
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Storage: StorageConfig{
			Namespace: "images/",
			Root:      ".",
		},
		Fetch: FetchConfig{
			Timeout:  0,
			MaxBytes: 32 << 20,
		},
		Engine: EngineConfig{
			Backend:      BackendDeplot,
			URL:          "http://127.0.0.1:8000",
			Model:        "google/deplot",
			MaxNewTokens: 1024,
			SendFormat:   "png",
			SendSize:     0,
			SendQuality:  90,
			Serialize:    true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// LoadFromFile loads configuration from a YAML (.yaml, .yml) or JSON file.
// Values missing from the file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration as YAML or JSON depending on the extension
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr cannot be empty")
	}

	if ns := c.Storage.Namespace; ns != "" {
		if strings.HasPrefix(ns, "/") || path.Clean(ns)+"/" != ensureSlash(ns) || strings.HasPrefix(path.Clean(ns), "..") {
			return fmt.Errorf("storage.namespace must be a clean relative prefix like images/")
		}
	}

	if c.Fetch.MaxBytes < 0 {
		return fmt.Errorf("fetch.max_bytes cannot be negative")
	}

	switch c.Engine.Backend {
	case BackendDeplot, BackendLlamaCPP:
	case BackendOllama:
		if c.Engine.Model == "" {
			return fmt.Errorf("engine.model is required for the ollama backend")
		}
	default:
		return fmt.Errorf("engine.backend must be one of %s, %s, %s", BackendDeplot, BackendOllama, BackendLlamaCPP)
	}

	if c.Engine.URL == "" {
		return fmt.Errorf("engine.url cannot be empty")
	}

	switch strings.ToLower(c.Engine.SendFormat) {
	case "png", "jpg", "jpeg":
	default:
		return fmt.Errorf("engine.send_format must be png or jpg")
	}

	if c.Engine.SendQuality < 1 || c.Engine.SendQuality > 100 {
		return fmt.Errorf("engine.send_quality must be between 1 and 100")
	}

	if c.Engine.SendSize < 0 {
		return fmt.Errorf("engine.send_size cannot be negative")
	}

	switch c.Logging.Format {
	case "auto", "json", "console":
	default:
		return fmt.Errorf("logging.format must be auto, json or console")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "plot2dataset", "config.yaml")
}

func ensureSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
