package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// GuildFileName is the default name of the guild configuration file.
const GuildFileName = "guild.yaml"

// RoleMapping ties a reaction emoji to a guild role, looked up by name.
type RoleMapping struct {
	Emoji string `yaml:"emoji"`
	Role  string `yaml:"role"`
}

// ReactionRolesConfig describes the self-assignable role menu.
type ReactionRolesConfig struct {
	ChannelID string        `yaml:"channel_id"`
	Intro     string        `yaml:"intro"`
	Roles     []RoleMapping `yaml:"roles"`
}

// GuildConfig holds guild-specific settings that do not fit in env vars.
type GuildConfig struct {
	Version       string              `yaml:"version"`
	ReactionRoles ReactionRolesConfig `yaml:"reaction_roles"`
}

// Enabled reports whether a reaction role menu is configured.
func (r *ReactionRolesConfig) Enabled() bool {
	return r.ChannelID != "" && len(r.Roles) > 0
}

// RoleFor returns the role name mapped to emoji.
func (r *ReactionRolesConfig) RoleFor(emoji string) (string, bool) {
	key := EmojiKey(emoji)
	for _, m := range r.Roles {
		if EmojiKey(m.Emoji) == key {
			return m.Role, true
		}
	}
	return "", false
}

// EmojiKey drops the variation selector so "⚔️" and "⚔" compare equal.
func EmojiKey(emoji string) string {
	return strings.ReplaceAll(emoji, "\uFE0F", "")
}

// Validate checks the configuration for errors
func (c *GuildConfig) Validate() error {
	rr := c.ReactionRoles
	if rr.ChannelID == "" && len(rr.Roles) > 0 {
		return fmt.Errorf("reaction_roles: channel_id is required when roles are defined")
	}
	if rr.ChannelID != "" && !isSnowflake(rr.ChannelID) {
		return fmt.Errorf("reaction_roles: channel_id must be a numeric id (got: %s)", rr.ChannelID)
	}

	seenEmoji := make(map[string]bool)
	seenRole := make(map[string]bool)
	for i, m := range rr.Roles {
		if m.Emoji == "" {
			return fmt.Errorf("reaction_roles: roles[%d]: emoji is required", i)
		}
		if m.Role == "" {
			return fmt.Errorf("reaction_roles: roles[%d]: role is required", i)
		}
		key := EmojiKey(m.Emoji)
		if seenEmoji[key] {
			return fmt.Errorf("reaction_roles: emoji %s is mapped twice", m.Emoji)
		}
		if seenRole[m.Role] {
			return fmt.Errorf("reaction_roles: role '%s' is mapped twice", m.Role)
		}
		seenEmoji[key] = true
		seenRole[m.Role] = true
	}
	return nil
}

// LoadGuildConfig loads and parses the guild.yaml file.
// If configPath is empty, it searches standard locations.
// Returns nil, "", nil if no file is found (reaction roles disabled).
func LoadGuildConfig(configPath string) (*GuildConfig, string, error) {
	var searchPaths []string

	if configPath != "" {
		searchPaths = append(searchPaths, configPath)
	} else {
		searchPaths = append(searchPaths,
			"./"+GuildFileName,
			"./configs/"+GuildFileName,
			"/opt/robocop/"+GuildFileName,
		)
		if home := os.Getenv("HOME"); home != "" {
			searchPaths = append(searchPaths,
				filepath.Join(home, ".config", "robocop", GuildFileName),
			)
		}
	}

	for _, path := range searchPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // Try next path
			}
			return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
		}

		var config GuildConfig
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, "", fmt.Errorf("failed to parse %s: %w", path, err)
		}

		if err := config.Validate(); err != nil {
			return nil, "", fmt.Errorf("invalid config in %s: %w", path, err)
		}

		return &config, path, nil
	}

	if configPath != "" {
		return nil, "", fmt.Errorf("guild config not found: %s", configPath)
	}

	return nil, "", nil
}
