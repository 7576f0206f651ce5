// Package config provides YAML-based configuration loading for Valet.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Valet configuration, loaded from config.yaml.
type Config struct {
	Platform  string          `yaml:"platform"` // telegram, discord, or slack
	Telegram  TelegramConfig  `yaml:"telegram"`
	Discord   DiscordConfig   `yaml:"discord"`
	Slack     SlackConfig     `yaml:"slack"`
	Smartcar  SmartcarConfig  `yaml:"smartcar"`
	LLM       LLMConfig       `yaml:"llm"`
	DB        DBConfig        `yaml:"db"`
	Assistant AssistantConfig `yaml:"assistant"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
}

// DiscordConfig holds Discord gateway settings.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	AppToken  string `yaml:"app_token"`
	ChannelID string `yaml:"channel_id"`
}

// SmartcarConfig holds Smartcar API credentials and mode.
type SmartcarConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
	Mode         string `yaml:"mode"` // "live" or "simulated"
}

// LLMConfig selects and configures the language model provider.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // "openai" or "anthropic"
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	Model           string `yaml:"model"`
	TimeoutSec      int    `yaml:"timeout_sec"`
}

// DBConfig holds database connection settings. Driver "sqlite" uses Path;
// driver "mysql" uses Host/Port/Database.
type DBConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// AssistantConfig tunes the action-dispatch pipeline.
type AssistantConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ContextFanout       int     `yaml:"context_fanout"`
	HistoryTurns        int     `yaml:"history_turns"`
	CallTimeoutSec      int     `yaml:"call_timeout_sec"`
}

// DashboardConfig holds the optional status dashboard settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// TelemetryConfig holds the scheduled snapshot recorder settings.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"` // 5-field cron expression
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// envRefRe matches ${VAR} references in config values.
var envRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Parse unmarshals YAML bytes into a validated Config. Values of the form
// ${VAR} are replaced with the corresponding environment variable so that
// secrets can stay out of the file.
func Parse(data []byte) (*Config, error) {
	expanded := envRefRe.ReplaceAllStringFunc(string(data), func(ref string) string {
		name := envRefRe.FindStringSubmatch(ref)[1]
		return os.Getenv(name)
	})

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Platform == "" {
		c.Platform = "telegram"
	}
	if c.Telegram.PollIntervalSec == 0 {
		c.Telegram.PollIntervalSec = 2
	}
	if c.Smartcar.Mode == "" {
		c.Smartcar.Mode = "simulated"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.Model = "claude-3-5-sonnet-20241022"
		default:
			c.LLM.Model = "gpt-4-turbo-preview"
		}
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "valet.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.Database == "" {
			c.DB.Database = "valet"
		}
	}
	if c.Assistant.ConfidenceThreshold == 0 {
		c.Assistant.ConfidenceThreshold = 0.7
	}
	if c.Assistant.ContextFanout == 0 {
		c.Assistant.ContextFanout = 3
	}
	if c.Assistant.HistoryTurns == 0 {
		c.Assistant.HistoryTurns = 10
	}
	if c.Assistant.CallTimeoutSec == 0 {
		c.Assistant.CallTimeoutSec = 15
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Telemetry.Cron == "" {
		c.Telemetry.Cron = "*/30 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string

	switch c.Platform {
	case "telegram":
		if c.Telegram.BotToken == "" {
			errs = append(errs, "telegram.bot_token is required")
		}
	case "discord":
		if c.Discord.BotToken == "" {
			errs = append(errs, "discord.bot_token is required")
		}
	case "slack":
		if c.Slack.BotToken == "" {
			errs = append(errs, "slack.bot_token is required")
		}
		if c.Slack.AppToken == "" {
			errs = append(errs, "slack.app_token is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("platform %q is not supported (telegram, discord, slack)", c.Platform))
	}

	if c.Smartcar.ClientID == "" {
		errs = append(errs, "smartcar.client_id is required")
	}
	if c.Smartcar.ClientSecret == "" {
		errs = append(errs, "smartcar.client_secret is required")
	}
	if c.Smartcar.Mode != "live" && c.Smartcar.Mode != "simulated" {
		errs = append(errs, fmt.Sprintf("smartcar.mode %q is not supported (live, simulated)", c.Smartcar.Mode))
	}

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			errs = append(errs, "llm.openai_api_key is required for provider openai")
		}
	case "anthropic":
		if c.LLM.AnthropicAPIKey == "" {
			errs = append(errs, "llm.anthropic_api_key is required for provider anthropic")
		}
	default:
		errs = append(errs, fmt.Sprintf("llm.provider %q is not supported (openai, anthropic)", c.LLM.Provider))
	}

	if c.DB.Driver != "sqlite" && c.DB.Driver != "mysql" {
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (sqlite, mysql)", c.DB.Driver))
	}

	if c.Assistant.ConfidenceThreshold < 0 || c.Assistant.ConfidenceThreshold > 1 {
		errs = append(errs, "assistant.confidence_threshold must be within [0,1]")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
