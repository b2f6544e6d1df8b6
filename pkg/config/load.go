package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override, e.g. ANIMALS_DOWNLOAD_CONCURRENCY
const EnvPrefix = "ANIMALS"

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"source-url":           "source_url",
	"output-dir":           "output_dir",
	"state-dir":            "state_dir",
	"user-agent":           "user_agent",
	"concurrency":          "download.concurrency",
	"max-attempts":         "download.max_attempts",
	"timeout":              "download.per_item_timeout",
	"max-bytes":            "download.max_bytes_per_item",
	"min-request-interval": "download.min_request_interval",
	"respect-robots":       "download.respect_robots",
	"max-records":          "scrape.max_records",
	"publish-bucket":       "publish.bucket_url",
}

// Load builds an AppConfig from, in increasing precedence: defaults, the YAML
// file, ANIMALS_* environment variables and any flags that were set explicitly.
// An empty configPath searches ./config.yaml and ./config/config.yaml and is not
// an error when neither exists. The result is not validated.
func Load(configPath string, flags *pflag.FlagSet) (*AppConfig, error) {
	v := viper.New()
	SetDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag '%s': %w", name, err)
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults registers every known key so environment overrides apply to all of them
func SetDefaults(v *viper.Viper) {
	v.SetDefault("source_url", DefaultSourceURL)
	v.SetDefault("summary_api_base", DefaultSummaryAPIBase)
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("output_dir", DefaultOutputDir)
	v.SetDefault("state_dir", DefaultStateDir)
	v.SetDefault("global_timeout", 0)

	v.SetDefault("download.concurrency", DefaultConcurrency)
	v.SetDefault("download.per_item_timeout", DefaultPerItemTimeout)
	v.SetDefault("download.max_bytes_per_item", DefaultMaxBytesPerItem)
	v.SetDefault("download.max_attempts", DefaultMaxAttempts)
	v.SetDefault("download.base_backoff", DefaultBaseBackoff)
	v.SetDefault("download.max_backoff", DefaultMaxBackoff)
	v.SetDefault("download.backoff_jitter", false)
	v.SetDefault("download.min_request_interval", DefaultMinRequestInterval)
	v.SetDefault("download.size_overflow_fatal", false)
	v.SetDefault("download.require_image_content_type", true)
	v.SetDefault("download.skip_existing", true)
	v.SetDefault("download.respect_robots", false)
	v.SetDefault("download.cleanup_empty_files", true)

	v.SetDefault("scrape.api_request_interval", DefaultAPIRequestInterval)
	v.SetDefault("scrape.api_concurrency", DefaultAPIConcurrency)
	v.SetDefault("scrape.use_commons_fallback", false)
	v.SetDefault("scrape.max_records", 0)

	v.SetDefault("publish.bucket_url", "")
	v.SetDefault("publish.prefix", "")
	v.SetDefault("publish.concurrency", DefaultPublishConcurrency)
}

// DumpYAML renders the effective configuration
func DumpYAML(cfg *AppConfig) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}
