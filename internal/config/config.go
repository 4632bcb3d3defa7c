// Package config loads application settings from config.yml and the
// environment.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Filter bounds applied to every downloaded image. A zero bound is
// disabled; maximum bounds are inclusive.
type Filter struct {
	MinWidth  int      `mapstructure:"min_width" json:"min_width"`
	MinHeight int      `mapstructure:"min_height" json:"min_height"`
	MaxWidth  int      `mapstructure:"max_width" json:"max_width"`
	MaxHeight int      `mapstructure:"max_height" json:"max_height"`
	MinBytes  int64    `mapstructure:"min_bytes" json:"min_bytes"`
	MaxBytes  int64    `mapstructure:"max_bytes" json:"max_bytes"`
	Types     []string `mapstructure:"types" json:"types"`
}

// Network holds settings shared by every HTTP client of a task.
type Network struct {
	Proxy     string `mapstructure:"proxy"`
	Timeout   int    `mapstructure:"timeout"`
	Retries   int    `mapstructure:"retries"`
	BackoffMS int    `mapstructure:"backoff_ms"`
	UserAgent string `mapstructure:"user_agent"`
}

// TimeoutDuration returns the per-request timeout.
func (n Network) TimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// Backoff returns the fixed wait between retries.
func (n Network) Backoff() time.Duration {
	return time.Duration(n.BackoffMS) * time.Millisecond
}

// Download holds the task pipeline settings.
type Download struct {
	Dir       string `mapstructure:"dir" json:"dir"`
	Threads   int    `mapstructure:"threads" json:"threads"`
	Index     bool   `mapstructure:"index" json:"index"`
	LoopMax   int    `mapstructure:"loop_max" json:"loop_max"`
	AutoPage  bool   `mapstructure:"auto_page" json:"auto_page"`
	PDFOutput bool   `mapstructure:"pdf_output" json:"pdf_output"`
}

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port int `mapstructure:"port"`
	Log  struct {
		Development bool   `mapstructure:"development"`
		Level       string `mapstructure:"level"`
	} `mapstructure:"log"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Download Download `mapstructure:"download"`
	Filter   Filter   `mapstructure:"filter"`
	Network  Network  `mapstructure:"network"`
	Plugins  struct {
		Path      string `mapstructure:"path"`
		CacheSize int    `mapstructure:"cache_size"`
	} `mapstructure:"plugins"`
	Refresh struct {
		Interval int `mapstructure:"interval"`
	} `mapstructure:"refresh"`
	Inbox struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"inbox"`
	Cover struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"cover"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AddConfigPath(".")

	// ARCHOCTOPUS_DOWNLOAD_DIR overrides download.dir, and so on.
	viper.SetEnvPrefix("ARCHOCTOPUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration produced by the defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8421)
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("database.path", "./archoctopus.db")

	v.SetDefault("download.dir", "./downloads")
	v.SetDefault("download.threads", 5)
	v.SetDefault("download.index", true)
	v.SetDefault("download.loop_max", 3)
	v.SetDefault("download.auto_page", true)
	v.SetDefault("download.pdf_output", false)

	v.SetDefault("filter.min_width", 0)
	v.SetDefault("filter.min_height", 0)
	v.SetDefault("filter.max_width", 0)
	v.SetDefault("filter.max_height", 0)
	v.SetDefault("filter.min_bytes", 0)
	v.SetDefault("filter.max_bytes", 0)
	v.SetDefault("filter.types", []string{})

	v.SetDefault("network.proxy", "")
	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.retries", 3)
	v.SetDefault("network.backoff_ms", 1000)
	v.SetDefault("network.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:58.0) Gecko/20100101 Firefox/58.0")

	v.SetDefault("plugins.path", "./plugins")
	v.SetDefault("plugins.cache_size", 64)
	v.SetDefault("refresh.interval", 0)
	v.SetDefault("inbox.path", "")
	v.SetDefault("cover.enabled", true)
}
