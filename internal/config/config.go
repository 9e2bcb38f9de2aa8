package config

import (
	"crypto/subtle"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ryubing/robocop-go/pkg/logger"
)

var (
	telegramTokenRegex = regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	discordTokenRegex  = regexp.MustCompile(`^[A-Za-z0-9_-]{23,28}\.[A-Za-z0-9_-]{6,7}\.[A-Za-z0-9_-]{27,38}$`)
	snowflakeRegex     = regexp.MustCompile(`^\d{15,21}$`)
)

// CLIOptions holds command-line overrides collected by the cobra commands.
type CLIOptions struct {
	GuildConfig string // --guild-config: path to guild.yaml
	StateDir    string // --state-dir: directory holding data/*.json
	LogLevel    string // --log-level
}

// Config holds all application configuration
type Config struct {
	// Discord
	DiscordBotToken    string
	DiscordGuildID     string
	LogAllowedChannels []string
	StaffRoleIDs       []string
	CommandPrefixes    []string
	SourceURL          string

	// State
	StateDir        string
	GuildConfigPath string
	Guild           *GuildConfig // nil when no guild.yaml was found

	// Log fetching
	FetchHeadBytes        int64
	FetchTailBytes        int64
	FetchMaxBytes         int64
	FetchTimeoutSeconds   int
	MaxConcurrentAnalyses int

	// Telegram archive mirror (optional)
	TelegramBotToken       string
	TelegramArchiveChannel int64

	// Application
	LogLevel             string
	LogDir               string
	EnableDatabase       bool
	DatabasePath         string
	HistoryRetentionDays int

	// Proxy
	HTTPProxy  string
	HTTPSProxy string
}

// Load loads configuration from .env file and environment variables
// Priority: .env file > OS environment variables
// For CLI overrides, use LoadWithCLI instead
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides
// Priority: CLI args > .env file > OS environment variables
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	// Set up viper first to read OS environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv.Load() sets OS env vars from .env, which viper will then read
	_ = godotenv.Load()

	setDefaults()

	config := &Config{
		DiscordBotToken:    viper.GetString("DISCORD_BOT_TOKEN"),
		DiscordGuildID:     viper.GetString("DISCORD_GUILD_ID"),
		LogAllowedChannels: splitList(viper.GetString("LOG_ALLOWED_CHANNELS")),
		StaffRoleIDs:       splitList(viper.GetString("STAFF_ROLE_IDS")),
		CommandPrefixes:    splitList(viper.GetString("COMMAND_PREFIXES")),
		SourceURL:          viper.GetString("SOURCE_URL"),

		StateDir:        viper.GetString("STATE_DIR"),
		GuildConfigPath: viper.GetString("GUILD_CONFIG"),

		FetchHeadBytes:        viper.GetInt64("FETCH_HEAD_BYTES"),
		FetchTailBytes:        viper.GetInt64("FETCH_TAIL_BYTES"),
		FetchMaxBytes:         viper.GetInt64("FETCH_MAX_BYTES"),
		FetchTimeoutSeconds:   viper.GetInt("FETCH_TIMEOUT_SECONDS"),
		MaxConcurrentAnalyses: viper.GetInt("MAX_CONCURRENT_ANALYSES"),

		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),

		LogLevel:             viper.GetString("LOG_LEVEL"),
		LogDir:               viper.GetString("LOG_DIR"),
		EnableDatabase:       viper.GetBool("ENABLE_DATABASE"),
		DatabasePath:         viper.GetString("DATABASE_PATH"),
		HistoryRetentionDays: viper.GetInt("HISTORY_RETENTION_DAYS"),

		HTTPProxy:  viper.GetString("HTTP_PROXY"),
		HTTPSProxy: viper.GetString("HTTPS_PROXY"),
	}

	// Apply CLI overrides (highest priority)
	if cli != nil {
		if cli.GuildConfig != "" {
			config.GuildConfigPath = cli.GuildConfig
		}
		if cli.StateDir != "" {
			config.StateDir = cli.StateDir
		}
		if cli.LogLevel != "" {
			config.LogLevel = cli.LogLevel
		}
	}

	guild, foundPath, err := LoadGuildConfig(config.GuildConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load guild config: %w", err)
	}
	config.Guild = guild
	if foundPath != "" {
		config.GuildConfigPath = foundPath
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("COMMAND_PREFIXES", ".,!")
	viper.SetDefault("SOURCE_URL", "https://github.com/ryubing/robocop-go")
	viper.SetDefault("STATE_DIR", ".")
	viper.SetDefault("FETCH_HEAD_BYTES", 20000)
	viper.SetDefault("FETCH_TAIL_BYTES", 6000)
	viper.SetDefault("FETCH_MAX_BYTES", 64<<20)
	viper.SetDefault("FETCH_TIMEOUT_SECONDS", 30)
	viper.SetDefault("MAX_CONCURRENT_ANALYSES", 4)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_DIR", "./logs")
	viper.SetDefault("ENABLE_DATABASE", true)
	viper.SetDefault("DATABASE_PATH", "./data/analyses.db")
	viper.SetDefault("HISTORY_RETENTION_DAYS", 90)
}

// Validate checks everything except the Discord credentials, which only the
// bot needs. See ValidateBot.
func (c *Config) Validate() error {
	for _, id := range c.LogAllowedChannels {
		if !isSnowflake(id) {
			return fmt.Errorf("LOG_ALLOWED_CHANNELS contains an invalid channel id: %s", id)
		}
	}
	for _, id := range c.StaffRoleIDs {
		if !isSnowflake(id) {
			return fmt.Errorf("STAFF_ROLE_IDS contains an invalid role id: %s", id)
		}
	}
	if c.DiscordGuildID != "" && !isSnowflake(c.DiscordGuildID) {
		return fmt.Errorf("DISCORD_GUILD_ID must be a numeric id")
	}

	if c.StateDir == "" {
		return fmt.Errorf("STATE_DIR is required")
	}

	if c.FetchHeadBytes < 1 || c.FetchTailBytes < 1 {
		return fmt.Errorf("FETCH_HEAD_BYTES and FETCH_TAIL_BYTES must be positive")
	}
	if c.FetchMaxBytes < c.FetchHeadBytes+c.FetchTailBytes {
		return fmt.Errorf("FETCH_MAX_BYTES must be at least FETCH_HEAD_BYTES + FETCH_TAIL_BYTES")
	}
	if c.FetchTimeoutSeconds < 1 || c.FetchTimeoutSeconds > 300 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be between 1 and 300")
	}
	if c.MaxConcurrentAnalyses < 1 || c.MaxConcurrentAnalyses > 64 {
		return fmt.Errorf("MAX_CONCURRENT_ANALYSES must be between 1 and 64")
	}

	// Telegram archive is optional, but a half-configured one is an error
	if c.TelegramBotToken != "" || c.TelegramArchiveChannel != 0 {
		if !telegramTokenRegex.MatchString(c.TelegramBotToken) {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
		}
		if c.TelegramArchiveChannel > -100 {
			return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
		}
	}

	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.EnableDatabase && c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required when ENABLE_DATABASE=true")
	}
	if c.HistoryRetentionDays < 1 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must be at least 1")
	}

	for name, proxy := range map[string]string{"HTTP_PROXY": c.HTTPProxy, "HTTPS_PROXY": c.HTTPSProxy} {
		if proxy == "" {
			continue
		}
		u, err := url.Parse(proxy)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("%s must be an http:// or https:// URL", name)
		}
	}

	return nil
}

// ValidateBot checks the settings the Discord bot cannot run without.
func (c *Config) ValidateBot() error {
	if c.DiscordBotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}
	if constantTimePrefixMatch(c.DiscordBotToken, "Bot ") {
		return fmt.Errorf("DISCORD_BOT_TOKEN must not include the 'Bot ' prefix")
	}
	if !discordTokenRegex.MatchString(c.DiscordBotToken) {
		return fmt.Errorf("DISCORD_BOT_TOKEN has invalid format")
	}
	if c.DiscordGuildID == "" {
		return fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	if len(c.LogAllowedChannels) == 0 {
		return fmt.Errorf("LOG_ALLOWED_CHANNELS must list at least one channel")
	}
	return nil
}

// HasArchiveChannel returns true if the Telegram archive mirror is configured
func (c *Config) HasArchiveChannel() bool {
	return c.TelegramBotToken != "" && c.TelegramArchiveChannel != 0
}

// HasReactionRoles returns true if guild.yaml defines a role menu
func (c *Config) HasReactionRoles() bool {
	return c.Guild != nil && c.Guild.ReactionRoles.Enabled()
}

// IsStaff reports whether any of the member's roles is a staff role.
func (c *Config) IsStaff(memberRoles []string) bool {
	for _, r := range memberRoles {
		if slices.Contains(c.StaffRoleIDs, r) {
			return true
		}
	}
	return false
}

// GetProxyURL returns the appropriate proxy URL for HTTP/HTTPS requests
func (c *Config) GetProxyURL(isHTTPS bool) string {
	if isHTTPS && c.HTTPSProxy != "" {
		return c.HTTPSProxy
	}
	if c.HTTPProxy != "" {
		return c.HTTPProxy
	}
	return ""
}

// constantTimePrefixMatch checks if s starts with prefix using constant-time comparison.
// Returns false if s is shorter than prefix.
func constantTimePrefixMatch(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(s[:len(prefix)]), []byte(prefix)) == 1
}

// splitList splits a comma separated env value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isSnowflake(id string) bool {
	return snowflakeRegex.MatchString(id)
}
