package config

import "time"

// Defaults shared by Validate and the viper defaults in Load
const (
	DefaultSourceURL          = "https://en.wikipedia.org/wiki/List_of_animal_names"
	DefaultSummaryAPIBase     = "https://en.wikipedia.org/api/rest_v1/page/summary/"
	DefaultUserAgent          = "Mozilla/5.0 (compatible; AnimalScraper/1.0; Educational Purpose)"
	DefaultOutputDir          = "./animal_images"
	DefaultStateDir           = "./scraper_state"
	DefaultConcurrency        = 5
	DefaultPerItemTimeout     = 30 * time.Second
	DefaultMaxBytesPerItem    = 15 * 1024 * 1024 // 15,728,640
	DefaultMaxAttempts        = 3
	DefaultBaseBackoff        = 1 * time.Second
	DefaultMaxBackoff         = 30 * time.Second
	DefaultMinRequestInterval = 100 * time.Millisecond
	DefaultAPIRequestInterval = 100 * time.Millisecond
	DefaultAPIConcurrency     = 4
	DefaultPublishConcurrency = 4
)

// AppConfig holds the global application configuration
type AppConfig struct {
	SourceURL          string           `yaml:"source_url" mapstructure:"source_url"`
	SummaryAPIBase     string           `yaml:"summary_api_base" mapstructure:"summary_api_base"`
	UserAgent          string           `yaml:"user_agent" mapstructure:"user_agent"`
	OutputDir          string           `yaml:"output_dir" mapstructure:"output_dir"`
	StateDir           string           `yaml:"state_dir" mapstructure:"state_dir"`
	GlobalTimeout      time.Duration    `yaml:"global_timeout,omitempty" mapstructure:"global_timeout"`
	Download           DownloadConfig   `yaml:"download" mapstructure:"download"`
	Scrape             ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Publish            PublishConfig    `yaml:"publish,omitempty" mapstructure:"publish"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty" mapstructure:"http_client_settings"`
}

// DownloadConfig is the configuration surface of the concurrent fetch subsystem
type DownloadConfig struct {
	Concurrency             int           `yaml:"concurrency" mapstructure:"concurrency"`
	PerItemTimeout          time.Duration `yaml:"per_item_timeout" mapstructure:"per_item_timeout"`
	MaxBytesPerItem         int64         `yaml:"max_bytes_per_item" mapstructure:"max_bytes_per_item"`
	MaxAttempts             int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseBackoff             time.Duration `yaml:"base_backoff" mapstructure:"base_backoff"`
	MaxBackoff              time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BackoffJitter           bool          `yaml:"backoff_jitter,omitempty" mapstructure:"backoff_jitter"`
	MinRequestInterval      time.Duration `yaml:"min_request_interval" mapstructure:"min_request_interval"`
	SizeOverflowFatal       bool          `yaml:"size_overflow_fatal,omitempty" mapstructure:"size_overflow_fatal"` // Mid-stream overflow is transient unless set
	RequireImageContentType *bool         `yaml:"require_image_content_type,omitempty" mapstructure:"require_image_content_type"`
	SkipExisting            *bool         `yaml:"skip_existing,omitempty" mapstructure:"skip_existing"`
	RespectRobots           bool          `yaml:"respect_robots,omitempty" mapstructure:"respect_robots"`
	CleanupEmptyFiles       *bool         `yaml:"cleanup_empty_files,omitempty" mapstructure:"cleanup_empty_files"`
}

// ScrapeConfig controls record extraction from the source page
type ScrapeConfig struct {
	APIRequestInterval time.Duration `yaml:"api_request_interval" mapstructure:"api_request_interval"`
	APIConcurrency     int           `yaml:"api_concurrency" mapstructure:"api_concurrency"`
	UseCommonsFallback bool          `yaml:"use_commons_fallback,omitempty" mapstructure:"use_commons_fallback"`
	MaxRecords         int           `yaml:"max_records,omitempty" mapstructure:"max_records"` // 0 = no limit
}

// PublishConfig configures the optional blob sink for downloaded images
type PublishConfig struct {
	BucketURL   string `yaml:"bucket_url,omitempty" mapstructure:"bucket_url"` // e.g. file:///srv/images, s3://bucket, mem://
	Prefix      string `yaml:"prefix,omitempty" mapstructure:"prefix"`
	Concurrency int    `yaml:"concurrency,omitempty" mapstructure:"concurrency"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`                                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`                   // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty" mapstructure:"max_idle_conns_per_host"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty" mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty" mapstructure:"tls_handshake_timeout"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty" mapstructure:"expect_continue_timeout"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty" mapstructure:"force_attempt_http2"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty" mapstructure:"dialer_timeout"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty" mapstructure:"dialer_keep_alive"`
	MaxRedirects          int           `yaml:"max_redirects,omitempty" mapstructure:"max_redirects"`
}

// GetEffectiveRequireImageContentType defaults to true when unset
func GetEffectiveRequireImageContentType(c DownloadConfig) bool {
	if c.RequireImageContentType != nil {
		return *c.RequireImageContentType
	}
	return true
}

// GetEffectiveSkipExisting defaults to true when unset
func GetEffectiveSkipExisting(c DownloadConfig) bool {
	if c.SkipExisting != nil {
		return *c.SkipExisting
	}
	return true
}

// GetEffectiveCleanupEmptyFiles defaults to true when unset
func GetEffectiveCleanupEmptyFiles(c DownloadConfig) bool {
	if c.CleanupEmptyFiles != nil {
		return *c.CleanupEmptyFiles
	}
	return true
}
