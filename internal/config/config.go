// Package config provides Viper-based configuration loading for the
// room server.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RoomConfig holds the public room options.
type RoomConfig struct {
	// Name is the room name shown in snapshots and the lobby directory.
	Name string `mapstructure:"name"`
	// Description is the room description.
	Description string `mapstructure:"description"`
	// MaxPlayers is the advertised player limit.
	MaxPlayers uint32 `mapstructure:"max_players"`
	// PreferredGameName is the game the room is intended for.
	PreferredGameName string `mapstructure:"preferred_game_name"`
	// HostName identifies the person or project hosting the room.
	HostName string `mapstructure:"host_name"`
	// GreetMessage lines are sent as server chat after a join; {{name}}
	// is replaced with the joiner's nickname. Empty uses a status packet.
	GreetMessage []string `mapstructure:"greet_message"`
	// ByeMessage is the leave counterpart of GreetMessage.
	ByeMessage []string `mapstructure:"bye_message"`
	// AnnounceDelay is the pause that lets fake-member snapshots
	// propagate before server-authored chat referencing them.
	AnnounceDelay time.Duration `mapstructure:"announce_delay"`
}

// TCPConfig holds the framed TCP listener settings.
type TCPConfig struct {
	Host string `mapstructure:"host"`
	Port uint16 `mapstructure:"port"`
	// ReadTimeout is the per-frame read deadline; zero disables it.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write deadline; zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
func (t TCPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// WebSocketConfig holds the optional WebSocket listener settings.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    uint16 `mapstructure:"port"`
	// AllowedOrigins restricts upgrades to exact Origin matches; empty
	// admits any origin.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ModerationConfig holds the ban/report store settings.
type ModerationConfig struct {
	// Path is the banlist document location.
	Path string `mapstructure:"path"`
}

// AuthConfig holds authentication service settings.
type AuthConfig struct {
	// KeyURL is where the token verification public key is fetched
	// from. Empty disables authentication; all joins are anonymous.
	KeyURL string `mapstructure:"key_url"`
}

// DirectoryConfig holds lobby directory registration settings.
type DirectoryConfig struct {
	// APIURL is the base URL of the public lobby directory. Empty
	// leaves the room unlisted.
	APIURL string `mapstructure:"api_url"`
	// Token authorizes the registration request.
	Token string `mapstructure:"token"`
}

// ChatConfig holds the command subsystem settings.
type ChatConfig struct {
	// CommandPrefix is the single character that marks a chat message
	// as a command.
	CommandPrefix string `mapstructure:"command_prefix"`
	// ScriptDir is scanned for Lua command scripts at startup; empty
	// disables scripted commands.
	ScriptDir string `mapstructure:"script_dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Room       RoomConfig       `mapstructure:"room"`
	TCP        TCPConfig        `mapstructure:"tcp"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Directory  DirectoryConfig  `mapstructure:"directory"`
	Chat       ChatConfig       `mapstructure:"chat"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Room.Name == "" {
		errs = append(errs, "room.name must not be empty")
	}
	if c.Room.MaxPlayers < 1 {
		errs = append(errs, "room.max_players must be >= 1")
	}
	if c.Room.AnnounceDelay < 0 {
		errs = append(errs, "room.announce_delay must not be negative")
	}
	if c.TCP.Port < 1 {
		errs = append(errs, "tcp.port must not be 0")
	}
	if c.WebSocket.Enabled && c.WebSocket.Port < 1 {
		errs = append(errs, "websocket.port must not be 0 when enabled")
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Moderation.Path == "" {
		errs = append(errs, "moderation.path must not be empty")
	}
	if len(c.Chat.CommandPrefix) != 1 {
		errs = append(errs, fmt.Sprintf("chat.command_prefix must be a single character, got %q", c.Chat.CommandPrefix))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result. A missing file is not an
// error: defaults and environment variables still apply.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ROOMD_ prefix
	v.SetEnvPrefix("ROOMD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper
// instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("room.name", "roomd Dedicated Server")
	v.SetDefault("room.description", "A dedicated peer-relay room server.")
	v.SetDefault("room.max_players", 10)
	v.SetDefault("room.preferred_game_name", "")
	v.SetDefault("room.host_name", "roomd")
	v.SetDefault("room.announce_delay", "100ms")

	v.SetDefault("tcp.host", "0.0.0.0")
	v.SetDefault("tcp.port", 24872)
	v.SetDefault("tcp.read_timeout", "5m")
	v.SetDefault("tcp.write_timeout", "30s")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 24873)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("moderation.path", "banlist.yaml")

	v.SetDefault("chat.command_prefix", "/")
	v.SetDefault("chat.script_dir", "")
}
