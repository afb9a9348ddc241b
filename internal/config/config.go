package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/ogulcanaydogan/credit-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/providers"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override of a config key.
const EnvPrefix = "CG"

// Config holds all Credit Guardian configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Settings SettingsConfig `mapstructure:"settings"`
	Mail     MailConfig     `mapstructure:"mail"`
	Logging  LoggingConfig  `mapstructure:"logging"`

	Projects      []model.ProjectConfig      `mapstructure:"projects"`
	Subscriptions []model.SubscriptionConfig `mapstructure:"subscriptions"`
	Email         []model.MailboxConfig      `mapstructure:"email"`

	// Warnings lists entries dropped or adjusted during validation.
	Warnings []string `mapstructure:"-"`

	file string
}

// StorageConfig defines history persistence.
type StorageConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ServerConfig defines the HTTP query API.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	APIKey          string        `mapstructure:"api_key"`
	RefreshCooldown time.Duration `mapstructure:"refresh_cooldown"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	StateFile       string        `mapstructure:"state_file"`
}

// WebhookConfig defines where alerts go.
type WebhookConfig struct {
	URL          string        `mapstructure:"url"`
	Type         string        `mapstructure:"type"`
	Secret       string        `mapstructure:"secret"`
	Source       string        `mapstructure:"source"`
	SlackChannel string        `mapstructure:"slack_channel"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// SettingsConfig tunes the check loop and the provider client.
type SettingsConfig struct {
	RefreshIntervalSeconds    int           `mapstructure:"balance_refresh_interval_seconds"`
	MinRefreshIntervalSeconds int           `mapstructure:"min_refresh_interval_seconds"`
	MaxConcurrentChecks       int           `mapstructure:"max_concurrent_checks"`
	ResponseCacheTTLSeconds   int           `mapstructure:"response_cache_ttl_seconds"`
	ProviderTimeout           time.Duration `mapstructure:"provider_timeout"`
	ProviderMaxRetries        int           `mapstructure:"provider_max_retries"`
	CircuitFailureThreshold   int           `mapstructure:"circuit_failure_threshold"`
	CircuitOpenSeconds        int           `mapstructure:"circuit_open_seconds"`
}

// MailConfig tunes the mailbox scanner.
type MailConfig struct {
	Schedule        string        `mapstructure:"schedule"`
	SinceDays       int           `mapstructure:"since_days"`
	MaxMessages     int           `mapstructure:"max_messages"`
	Concurrency     int           `mapstructure:"concurrency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Keywords        []string      `mapstructure:"keywords"`
	ReplaceDefaults bool          `mapstructure:"replace_defaults"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// File returns the config file that was read, or "" when running on defaults.
func (c *Config) File() string { return c.file }

// RefreshInterval is the balance refresh period, floored at the configured minimum.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(max(c.Settings.RefreshIntervalSeconds, c.Settings.MinRefreshIntervalSeconds)) * time.Second
}

// ResponseTTL is the provider response cache lifetime; zero disables it.
func (c *Config) ResponseTTL() time.Duration {
	return time.Duration(max(c.Settings.ResponseCacheTTLSeconds, 0)) * time.Second
}

// Alerts converts the webhook section for the alerts package.
func (c *Config) Alerts() alerts.Config {
	return alerts.Config{
		URL:          c.Webhook.URL,
		Type:         c.Webhook.Type,
		Secret:       c.Webhook.Secret,
		Source:       c.Webhook.Source,
		SlackChannel: c.Webhook.SlackChannel,
		Timeout:      c.Webhook.Timeout,
	}
}

// Load reads configuration from file and environment variables and validates
// it against the built-in providers.
func Load(cfgFile string) (*Config, error) {
	return LoadWith(cfgFile, providers.DefaultFactory().Known)
}

// LoadWith is Load with a custom provider set.
func LoadWith(cfgFile string, knownProvider func(string) bool) (*Config, error) {
	v := viper.New()

	loadDotEnv(".env")
	if cfgFile != "" {
		loadDotEnv(filepath.Join(filepath.Dir(cfgFile), ".env"))
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".cg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.file = v.ConfigFileUsed()

	cfg.applyCredentialEnv()
	if err := cfg.Validate(knownProvider); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.path", filepath.Join(home, ".cg", "guardian.db"))
	v.SetDefault("storage.retention_days", 90)

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.refresh_cooldown", "30s")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.state_file", filepath.Join(home, ".cg", "state.json"))

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.type", alerts.PlatformCustom)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.source", alerts.DefaultSource)
	v.SetDefault("webhook.slack_channel", "")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("settings.balance_refresh_interval_seconds", 3600)
	v.SetDefault("settings.min_refresh_interval_seconds", 60)
	v.SetDefault("settings.max_concurrent_checks", 20)
	v.SetDefault("settings.response_cache_ttl_seconds", 300)
	v.SetDefault("settings.provider_timeout", "15s")
	v.SetDefault("settings.provider_max_retries", 3)
	v.SetDefault("settings.circuit_failure_threshold", 3)
	v.SetDefault("settings.circuit_open_seconds", 60)

	v.SetDefault("mail.schedule", "")
	v.SetDefault("mail.since_days", 1)
	v.SetDefault("mail.max_messages", 1000)
	v.SetDefault("mail.concurrency", 5)
	v.SetDefault("mail.timeout", "30s")
	v.SetDefault("mail.replace_defaults", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func loadDotEnv(path string) {
	// Existing environment variables win over .env entries.
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: load %s: %v\n", path, err)
	}
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]`)

// EnvKey builds the override variable name for an entry, e.g.
// EnvKey("API_KEY", "Volc-Prod") is "API_KEY_VOLC_PROD".
func EnvKey(prefix, name string) string {
	return prefix + "_" + strings.ToUpper(nonAlnum.ReplaceAllString(name, "_"))
}

// applyCredentialEnv lets API_KEY_<PROJECT> and EMAIL_PASSWORD_<MAILBOX>
// supply secrets that are kept out of the config file.
func (c *Config) applyCredentialEnv() {
	for i := range c.Projects {
		if v, ok := os.LookupEnv(EnvKey("API_KEY", c.Projects[i].Name)); ok && v != "" {
			c.Projects[i].Credential = v
		}
	}
	for i := range c.Email {
		if v, ok := os.LookupEnv(EnvKey("EMAIL_PASSWORD", c.Email[i].DisplayName())); ok && v != "" {
			c.Email[i].Password = v
		}
	}
}
