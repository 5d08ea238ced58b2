// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// For required chat credentials, use ValidateChatReady.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Twitch credentials
	TwitchChannel      string
	TwitchBotUsername  string
	TwitchOAuthToken   string
	TwitchRefreshToken string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchScopes       string

	// Chat connection
	ChatAddr             string
	Capabilities         []string
	ExpectTimeout        time.Duration
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	MaxReconnectAttempts int

	// Command cooldowns
	UserCooldown   time.Duration
	GlobalCooldown time.Duration

	// HTTP
	HTTPAddr string
}

// Load reads environment variables and applies defaults. It doesn't fail if
// Twitch creds are missing; use ValidateChatReady() before connecting.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TwitchChannel = os.Getenv("TWITCH_CHANNEL")
	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchRefreshToken = os.Getenv("TWITCH_REFRESH_TOKEN")
	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchScopes = os.Getenv("TWITCH_SCOPES")
	if cfg.TwitchScopes == "" {
		// default scopes for chat bot
		cfg.TwitchScopes = "chat:read chat:edit"
	}

	cfg.ChatAddr = os.Getenv("TWITCH_CHAT_ADDR")
	if cfg.ChatAddr == "" {
		cfg.ChatAddr = "irc.chat.twitch.tv:6697"
	}

	if v := os.Getenv("TWITCH_CAPABILITIES"); v != "" {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				cfg.Capabilities = append(cfg.Capabilities, c)
			}
		}
	}

	var err error
	if cfg.ExpectTimeout, err = durationEnv("CHAT_EXPECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.BackoffBase, err = durationEnv("CHAT_BACKOFF_BASE", time.Second); err != nil {
		return nil, err
	}
	if cfg.BackoffCap, err = durationEnv("CHAT_BACKOFF_CAP", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxReconnectAttempts, err = intEnv("CHAT_MAX_RECONNECT_ATTEMPTS", 10); err != nil {
		return nil, err
	}

	if cfg.UserCooldown, err = durationEnv("COMMAND_USER_COOLDOWN", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.GlobalCooldown, err = durationEnv("COMMAND_GLOBAL_COOLDOWN", 3*time.Second); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}

	return cfg, nil
}

// ValidateChatReady checks required fields before opening the chat connection.
func (c *Config) ValidateChatReady() error {
	if c.TwitchChannel == "" || c.TwitchBotUsername == "" || c.TwitchOAuthToken == "" {
		return fmt.Errorf("missing twitch env: require TWITCH_CHANNEL, TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN")
	}
	return nil
}

// ScopeList splits the space-separated scope string.
func (c *Config) ScopeList() []string {
	return strings.Fields(c.TwitchScopes)
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (int): %w", key, err)
	}
	return n, nil
}
