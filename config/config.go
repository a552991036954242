// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with only the required credentials set.
// Use Validate to check those credentials before connecting anywhere.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/hzrd-media/viewer-tracker/botfilter"
)

// Defaults.
const (
	DefaultPollInterval    = 20 * time.Minute
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultEnvFile         = ".env"
)

type Config struct {
	// Discord
	DiscordToken   string
	TrackChannelID string

	// Twitch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchNickname     string
	TwitchOAuthToken   string

	// Tracking
	PollInterval time.Duration

	// Bot list
	BotUsernamesURL     string
	BotUsernamesFile    string
	BotUsernamesBuiltin bool

	// HTTP / ops
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	OTLPEndpoint    string
	ShutdownTimeout time.Duration
}

// Load reads the .env file named by ENV_FILE (if it exists) and then the environment.
// Variables already set in the environment win over the file. Load does not check
// required credentials; call Validate for that.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{
		DiscordToken:       strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		TrackChannelID:     strings.TrimSpace(os.Getenv("TRACK_CHANNEL_ID")),
		TwitchClientID:     strings.TrimSpace(os.Getenv("TWITCH_CLIENT_ID")),
		TwitchClientSecret: strings.TrimSpace(os.Getenv("TWITCH_CLIENT_SECRET")),
		TwitchNickname:     strings.TrimSpace(os.Getenv("TWITCH_NICKNAME")),
		TwitchOAuthToken:   strings.TrimSpace(os.Getenv("TWITCH_OAUTH_TOKEN")),
		BotUsernamesURL:    os.Getenv("BOT_USERNAMES_URL"),
		BotUsernamesFile:   os.Getenv("BOT_USERNAMES_FILE"),
		HTTPAddr:           os.Getenv("HTTP_ADDR"),
		LogLevel:           strings.ToLower(os.Getenv("LOG_LEVEL")),
		LogFormat:          strings.ToLower(os.Getenv("LOG_FORMAT")),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if cfg.BotUsernamesURL == "" {
		cfg.BotUsernamesURL = botfilter.DefaultURL
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	switch strings.ToLower(os.Getenv("BOT_USERNAMES_BUILTIN")) {
	case "1", "true", "yes":
		cfg.BotUsernamesBuiltin = true
	}

	var err error
	if cfg.PollInterval, err = parseInterval(os.Getenv("POLL_INTERVAL"), DefaultPollInterval); err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	if cfg.ShutdownTimeout, err = parseInterval(os.Getenv("SHUTDOWN_TIMEOUT"), DefaultShutdownTimeout); err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	return cfg, nil
}

// parseInterval accepts a Go duration ("20m") or a bare number of seconds ("1200").
func parseInterval(v string, def time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.Atoi(v); err == nil {
		d = time.Duration(n) * time.Second
	} else {
		d, err = time.ParseDuration(v)
		if err != nil {
			return 0, err
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", v)
	}
	return d, nil
}

// Validate reports every missing required variable at once.
func (c *Config) Validate() error {
	var missing []string
	if c.DiscordToken == "" {
		missing = append(missing, "DISCORD_TOKEN")
	}
	if c.TrackChannelID == "" {
		missing = append(missing, "TRACK_CHANNEL_ID")
	}
	if c.TwitchClientID == "" {
		missing = append(missing, "TWITCH_CLIENT_ID")
	}
	if c.TwitchClientSecret == "" {
		missing = append(missing, "TWITCH_CLIENT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}
	return nil
}

// AnonymousChat reports whether the IRC observer will connect without logging in.
func (c *Config) AnonymousChat() bool {
	return c.TwitchNickname == "" || c.TwitchOAuthToken == ""
}
