// Package config loads bridge configuration from flags, a .env file,
// BRIDGE_* environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bucketbridge/bucketbridge/internal/models"
)

// EnvPrefix is prepended to every environment variable name
const EnvPrefix = "BRIDGE"

// Secret backends
const (
	SecretsStatic = "static"
	SecretsAWS    = "aws"
)

// Config is the full bridge configuration
type Config struct {
	ListenAddr  string          `mapstructure:"listen_addr"`
	WebhookPath string          `mapstructure:"webhook_path"`
	DataDir     string          `mapstructure:"data_dir"`
	RootURL     string          `mapstructure:"root_url"`
	LogLevel    string          `mapstructure:"log_level"`
	GitPath     string          `mapstructure:"git_path"`
	Jenkins     JenkinsConfig   `mapstructure:"jenkins"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Secrets     SecretsConfig   `mapstructure:"secrets"`
	Ngrok       NgrokConfig     `mapstructure:"ngrok"`
	LinkCheck   LinkCheckConfig `mapstructure:"link_check"`
	RateLimit   RateLimitConfig `mapstructure:"webhook_rate_limit"`
	Jobs        []models.Job    `mapstructure:"jobs"`
}

// JenkinsConfig locates the Jenkins instance builds are scheduled on
type JenkinsConfig struct {
	URL   string `mapstructure:"url"`
	User  string `mapstructure:"user"`
	Token string `mapstructure:"token"`
}

// DatabaseConfig selects the job database. URL wins over SecretName.
type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	SecretName string `mapstructure:"secret_name"`
	Migrate    bool   `mapstructure:"migrate"`
}

// Enabled reports whether a database is configured
func (c DatabaseConfig) Enabled() bool {
	return c.URL != "" || c.SecretName != ""
}

// SecretsConfig selects how job API token references are resolved
type SecretsConfig struct {
	Backend string `mapstructure:"backend"`
}

// NgrokConfig enables a public ngrok endpoint for the webhook listener
type NgrokConfig struct {
	Domain    string `mapstructure:"domain"`
	Authtoken string `mapstructure:"authtoken"`
}

// LinkCheckConfig schedules the periodic GitBucket link check; zero disables it
type LinkCheckConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// RateLimitConfig limits webhook requests per client address; zero
// values disable the limit
type RateLimitConfig struct {
	Burst     int `mapstructure:"burst"`
	PerMinute int `mapstructure:"per_minute"`
}

var defaults = map[string]any{
	"listen_addr":                   ":8080",
	"webhook_path":                  "gitbucket-webhook",
	"data_dir":                      "./data",
	"root_url":                      "",
	"log_level":                     "info",
	"git_path":                      "git",
	"jenkins.url":                   "",
	"jenkins.user":                  "",
	"jenkins.token":                 "",
	"database.url":                  "",
	"database.secret_name":          "",
	"database.migrate":              true,
	"secrets.backend":               SecretsStatic,
	"ngrok.domain":                  "",
	"ngrok.authtoken":               "",
	"link_check.interval":           time.Duration(0),
	"webhook_rate_limit.burst":      60,
	"webhook_rate_limit.per_minute": 120,
}

// Loader reads Config and optionally watches the config file
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet

	mu      sync.Mutex
	current *Config
}

// NewLoader registers --config, --env-file, --listen and --log-level on fs.
// Load must be called after fs has been parsed.
func NewLoader(fs *pflag.FlagSet) *Loader {
	fs.String("config", "", "path to a YAML config file")
	fs.String("env-file", ".env", "dotenv file loaded into the environment when present")
	fs.String("listen", "", "listen address (overrides listen_addr)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	return &Loader{v: viper.New(), flags: fs}
}

// Load reads the configuration and validates it
func (l *Loader) Load() (*Config, error) {
	envFile, _ := l.flags.GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := l.v
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlag("listen_addr", l.flags.Lookup("listen")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("log_level", l.flags.Lookup("log-level")); err != nil {
		return nil, err
	}

	if file, _ := l.flags.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.current = cfg
	l.mu.Unlock()
	return cfg, nil
}

// Watch calls onChange with the new configuration every time the config
// file changes and still validates. Invalid edits are reported to onError
// and otherwise ignored. Without a config file Watch does nothing.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) bool {
	if l.v.ConfigFileUsed() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Current returns the most recently loaded configuration
func (l *Loader) Current() *Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

func (l *Loader) decode() (*Config, error) {
	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values and normalizes paths and URLs in place
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	c.WebhookPath = strings.Trim(strings.TrimSpace(c.WebhookPath), "/")
	if c.WebhookPath == "" || strings.ContainsAny(c.WebhookPath, "/?# ") {
		return fmt.Errorf("webhook_path must be a single path segment, got %q", c.WebhookPath)
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	switch c.Secrets.Backend {
	case SecretsStatic, SecretsAWS:
	default:
		return fmt.Errorf("secrets.backend must be %q or %q, got %q", SecretsStatic, SecretsAWS, c.Secrets.Backend)
	}

	if c.Jenkins.URL != "" {
		if err := validateHTTPURL("jenkins.url", c.Jenkins.URL); err != nil {
			return err
		}
	}
	if c.RootURL != "" {
		if err := validateHTTPURL("root_url", c.RootURL); err != nil {
			return err
		}
		c.RootURL = models.NormalizeBaseURL(c.RootURL)
	}

	if c.LinkCheck.Interval < 0 {
		return fmt.Errorf("link_check.interval must not be negative")
	}
	if c.RateLimit.Burst < 0 || c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("webhook_rate_limit values must not be negative")
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		job := &c.Jobs[i]
		if job.Name == "" {
			return fmt.Errorf("jobs[%d]: name is required", i)
		}
		if seen[job.Name] {
			return fmt.Errorf("jobs[%d]: duplicate job name %q", i, job.Name)
		}
		seen[job.Name] = true
		job.Link = job.Link.Normalized()
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}
