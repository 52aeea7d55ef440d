package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Providers   map[string]ProviderConfig `json:"providers"`
	// ProviderOrder is the fallback chain, first entry tried first.
	ProviderOrder []string          `json:"provider_order"`
	Translators   TranslatorsConfig `json:"translators"`
	Scanner       ScannerConfig     `json:"scanner"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	// DefaultEthiopicLanguage decides how Ethiopic-script text that matches
	// neither the Tigrinya nor the Amharic marker sets is classified.
	DefaultEthiopicLanguage string `json:"default_ethiopic_language"`
	MinWorkers              int    `json:"min_workers"`
	MaxWorkers              int    `json:"max_workers"`
	QueueSize               int    `json:"queue_size"`
	WorkerIdleTimeout       int    `json:"worker_idle_timeout"` // minutes
	TempCleanInterval       int    `json:"temp_clean_interval"` // minutes
	TempFileTTL             int    `json:"temp_file_ttl"`       // minutes
	FileBaseDir             string `json:"file_base_dir"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ProviderConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
	APIKey  string `json:"api_key"`
	// PreferNonEnglish moves the provider to the front of the chain when
	// the consultation language is Amharic or Tigrinya.
	PreferNonEnglish bool `json:"prefer_non_english"`
}

type TranslatorsConfig struct {
	I18Now I18NowConfig `json:"i18now"`
	Google GoogleConfig `json:"google"`
	Azure  AzureConfig  `json:"azure"`
}

type I18NowConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

type GoogleConfig struct {
	APIKey   string `json:"api_key"`
	Endpoint string `json:"endpoint"`
}

type AzureConfig struct {
	Endpoint string `json:"endpoint"`
	Key      string `json:"key"`
	Region   string `json:"region"`
}

type ScannerConfig struct {
	BaseURL string `json:"base_url"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}
	for _, name := range cfg.ProviderOrder {
		if _, ok := cfg.Providers[name]; !ok {
			return nil, fmt.Errorf("provider_order references unknown provider %q", name)
		}
	}

	// Relative sqlite paths resolve against the config file directory.
	for key, db := range cfg.Databases {
		if !strings.HasPrefix(strings.ToLower(key), "sqlite") {
			continue
		}
		if db.DSN == "" || db.DSN == ":memory:" || strings.HasPrefix(db.DSN, "file:") {
			continue
		}
		if !filepath.IsAbs(db.DSN) {
			db.DSN = filepath.Join(filepath.Dir(absPath), db.DSN)
			cfg.Databases[key] = db
		}
	}

	return &cfg, nil
}
