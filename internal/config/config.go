package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so yaml values can use the "5m" / "90s"
// notation.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// RoleBadge maps a Discord role to a rank badge. Order matters: the first
// entry a member holds wins.
type RoleBadge struct {
	Badge  string `yaml:"badge" validate:"required"`
	RoleID string `yaml:"roleID" validate:"required"`
}

// Config represents the application configuration
type Config struct {
	DiscordToken     string      `yaml:"discordToken,omitempty"`
	GuildID          string      `yaml:"guildID" validate:"required"`
	OpChannelID      string      `yaml:"opChannelID" validate:"required"`
	StoryChannelID   string      `yaml:"storyChannelID" validate:"required"`
	LeaveChannelID   string      `yaml:"leaveChannelID,omitempty"`
	ApproveChannelID string      `yaml:"approveChannelID,omitempty"`
	RedisURL         string      `yaml:"redisURL" validate:"required"`
	IdentityCacheTTL Duration    `yaml:"identityCacheTTL,omitempty"`
	RoleBadges       []RoleBadge `yaml:"roleBadges,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from opbridge_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	configPath, err := findConfigFile()
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.DiscordToken == "" {
		cfg.DiscordToken = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.IdentityCacheTTL == 0 {
		cfg.IdentityCacheTTL = Duration(5 * time.Minute)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate validates the configuration struct
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.DiscordToken == "" {
		return fmt.Errorf("discord token not set in config file or DISCORD_TOKEN environment variable")
	}

	return nil
}

// findConfigFile searches for opbridge_config.yaml in current directory and home directory
func findConfigFile() (string, error) {
	configFileName := "opbridge_config.yaml"

	// Check current directory
	if _, err := os.Stat(configFileName); err == nil {
		return configFileName, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, configFileName)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("config file not found in current directory or home directory")
}
