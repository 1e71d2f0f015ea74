package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Registry RegistryConfig `yaml:"registry" mapstructure:"registry"`
	Dedupe   DedupeConfig   `yaml:"dedupe" mapstructure:"dedupe"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig configures the external business registry client and
// the match scoring. Thresholds are deliberately configurable: they are
// hand-tuned and the main knob when recalibrating against a new dataset.
type RegistryConfig struct {
	APIKey          string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	QuotaCalls      int     `yaml:"quota_calls" mapstructure:"quota_calls"`
	QuotaPeriodSecs int     `yaml:"quota_period_secs" mapstructure:"quota_period_secs"`
	CooldownSecs    int     `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	MatchThreshold  float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	SearchPageSize  int     `yaml:"search_page_size" mapstructure:"search_page_size"`
	VerifyDelayMs   int     `yaml:"verify_delay_ms" mapstructure:"verify_delay_ms"`
	SweepDelayMs    int     `yaml:"sweep_delay_ms" mapstructure:"sweep_delay_ms"`
}

// DedupeConfig configures duplicate detection.
type DedupeConfig struct {
	DuplicateThreshold float64 `yaml:"duplicate_threshold" mapstructure:"duplicate_threshold"`
}

// CatalogConfig points at the industry/location catalog file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LISTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secret-bearing keys default to empty so AutomaticEnv can
	// bind them; viper only unmarshals keys it already knows about.
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("registry.api_key", "")
	v.SetDefault("registry.base_url", "https://api.company-information.service.gov.uk")
	v.SetDefault("registry.quota_calls", 600)
	v.SetDefault("registry.quota_period_secs", 300)
	v.SetDefault("registry.cooldown_secs", 60)
	v.SetDefault("registry.match_threshold", 0.6)
	v.SetDefault("registry.search_page_size", 20)
	v.SetDefault("registry.verify_delay_ms", 100)
	v.SetDefault("registry.sweep_delay_ms", 200)
	v.SetDefault("dedupe.duplicate_threshold", 0.8)
	v.SetDefault("catalog.path", "industries.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
