// Package config provides configuration types and loading for streampulse.
package config

import (
	"time"

	"github.com/streampulse/streampulse/internal/credentials"
	"github.com/streampulse/streampulse/internal/platform"
)

// Config is the root configuration struct.
// Top-level groups: Monitor, Chat, Platforms, Feed, Notify.
type Config struct {
	Monitor   MonitorConfig   `json:"monitor"`
	Chat      ChatConfig      `json:"chat"`
	Platforms PlatformsConfig `json:"platforms"`
	Feed      FeedConfig      `json:"feed"`
	Notify    NotifyConfig    `json:"notify"`
}

// MonitorConfig groups scheduler and runner settings.
type MonitorConfig struct {
	DefaultInterval     time.Duration `json:"defaultInterval" envconfig:"DEFAULT_INTERVAL"`
	TickInterval        time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	MaxConcurrentCycles int           `json:"maxConcurrentCycles" envconfig:"MAX_CONCURRENT_CYCLES"`
}

// ChatConfig groups live-chat collector settings.
type ChatConfig struct {
	Enabled         bool          `json:"enabled" envconfig:"ENABLED"`
	Server          string        `json:"server" envconfig:"SERVER"`
	CollectDuration time.Duration `json:"collectDuration" envconfig:"COLLECT_DURATION"`
}

// PlatformsConfig carries per-platform API credentials.
type PlatformsConfig struct {
	Twitch  TwitchConfig  `json:"twitch"`
	Twitter TwitterConfig `json:"twitter"`
	YouTube YouTubeConfig `json:"youtube"`
	Reddit  RedditConfig  `json:"reddit"`
}

// TwitchConfig holds Twitch Helix app credentials.
type TwitchConfig struct {
	ClientID     string `json:"clientId" envconfig:"CLIENT_ID"`
	ClientSecret string `json:"clientSecret" envconfig:"CLIENT_SECRET"`
	ChatToken    string `json:"chatToken,omitempty" envconfig:"CHAT_TOKEN"`
}

// TwitterConfig holds the Twitter API bearer token.
type TwitterConfig struct {
	BearerToken string `json:"bearerToken" envconfig:"BEARER_TOKEN"`
}

// YouTubeConfig holds the YouTube Data API key.
type YouTubeConfig struct {
	APIKey string `json:"apiKey" envconfig:"API_KEY"`
}

// RedditConfig holds Reddit app credentials.
type RedditConfig struct {
	ClientID     string `json:"clientId" envconfig:"CLIENT_ID"`
	ClientSecret string `json:"clientSecret" envconfig:"CLIENT_SECRET"`
	UserAgent    string `json:"userAgent" envconfig:"USER_AGENT"`
}

// FeedConfig configures the Kafka cycle-event feed. Empty brokers
// disable it.
type FeedConfig struct {
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// NotifyConfig configures Slack alerts. Empty token disables them.
type NotifyConfig struct {
	SlackToken   string `json:"slackToken" envconfig:"SLACK_TOKEN"`
	SlackChannel string `json:"slackChannel" envconfig:"SLACK_CHANNEL"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Monitor: MonitorConfig{
			DefaultInterval:     15 * time.Minute,
			TickInterval:        30 * time.Second,
			MaxConcurrentCycles: 4,
		},
		Chat: ChatConfig{
			Enabled:         true,
			Server:          "irc.chat.twitch.tv:6667",
			CollectDuration: 30 * time.Second,
		},
		Feed: FeedConfig{
			Topic: "streampulse.cycles",
		},
	}
}

// Credentials builds the credential map the cycle's provider serves.
func (c *Config) Credentials() map[platform.Platform]credentials.Credentials {
	return map[platform.Platform]credentials.Credentials{
		platform.Twitch: {
			ClientID:     c.Platforms.Twitch.ClientID,
			ClientSecret: c.Platforms.Twitch.ClientSecret,
			Token:        c.Platforms.Twitch.ChatToken,
		},
		platform.Twitter: {
			Token: c.Platforms.Twitter.BearerToken,
		},
		platform.YouTube: {
			Token: c.Platforms.YouTube.APIKey,
		},
		platform.Reddit: {
			ClientID:     c.Platforms.Reddit.ClientID,
			ClientSecret: c.Platforms.Reddit.ClientSecret,
			UserAgent:    c.Platforms.Reddit.UserAgent,
		},
	}
}
