package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	envTalkBaseURL   = "TALK_BASE_URL"
	envTalkBotSecret = "TALK_BOT_SECRET"
	envTalkAllowFrom = "TALK_ALLOW_FROM"
)

// RoomPolicy values accepted in channels.nextcloud_talk.room_policy.
const (
	RoomPolicyOpen    = "open"
	RoomPolicyMention = "mention"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	NextcloudTalk TalkConfig `json:"nextcloud_talk"`
}

// TalkConfig configures the Nextcloud Talk bot channel.
//
// BotSecret is the shared secret from `occ talk:bot:install`; Nextcloud
// requires at least 40 characters for a securely configured bot.
type TalkConfig struct {
	Enabled     bool     `json:"enabled"`
	BaseURL     string   `json:"base_url"`
	BotSecret   string   `json:"bot_secret"`
	WebhookHost string   `json:"webhook_host"`
	WebhookPort int      `json:"webhook_port"`
	WebhookPath string   `json:"webhook_path"`
	AllowFrom   []string `json:"allow_from"`
	AllowRooms  []string `json:"allow_rooms"`
	RoomPolicy  string   `json:"room_policy"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// GatewayConfig configures the health/readiness HTTP bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LoadConfig resolves config.json, unmarshals it, and applies environment
// overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides injects selected env-driven settings on top of file
// config. Secrets in particular are expected to arrive via environment in
// container deployments.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if base := strings.TrimSpace(os.Getenv(envTalkBaseURL)); base != "" {
		cfg.Channels.NextcloudTalk.BaseURL = base
	}

	if secret := strings.TrimSpace(os.Getenv(envTalkBotSecret)); secret != "" {
		cfg.Channels.NextcloudTalk.BotSecret = secret
	}

	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTalkAllowFrom)); rawAllowFrom != "" {
		cfg.Channels.NextcloudTalk.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TALKBRIDGE_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("TALKBRIDGE_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("TALKBRIDGE_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
