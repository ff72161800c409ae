// Package config provides Viper-based configuration loading for the Mancala server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TelnetConfig holds the client listener settings.
type TelnetConfig struct {
	// Host is the bind address for the listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the listener.
	Port int `mapstructure:"port"`
	// WriteTimeout bounds every write to a client; zero disables it.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// GameConfig holds the board shape and protocol limits.
type GameConfig struct {
	// Pits is the number of regular pits per player, excluding the end pit.
	Pits int `mapstructure:"pits"`
	// Pebbles is the per-pit stock of the first player to connect.
	Pebbles int `mapstructure:"pebbles"`
	// MaxName is the longest accepted name line, in bytes.
	MaxName int `mapstructure:"max_name"`
	// MaxMessage is the longest accepted move line, in bytes.
	MaxMessage int `mapstructure:"max_message"`
	// MessagesFile optionally names a YAML file overriding client texts.
	MessagesFile string `mapstructure:"messages_file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Telnet  TelnetConfig  `mapstructure:"telnet"`
	Game    GameConfig    `mapstructure:"game"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateTelnet(c.Telnet); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTelnet(t TelnetConfig) error {
	var errs []string
	// Port 0 asks the kernel for an ephemeral port.
	if t.Port < 0 || t.Port > 65535 {
		errs = append(errs, fmt.Sprintf("telnet.port must be 0-65535, got %d", t.Port))
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.Pits < 1 {
		errs = append(errs, fmt.Sprintf("game.pits must be >= 1, got %d", g.Pits))
	}
	if g.Pebbles < 1 {
		errs = append(errs, fmt.Sprintf("game.pebbles must be >= 1, got %d", g.Pebbles))
	}
	if g.MaxName < 1 {
		errs = append(errs, fmt.Sprintf("game.max_name must be >= 1, got %d", g.MaxName))
	}
	if g.MaxMessage < 1 {
		errs = append(errs, fmt.Sprintf("game.max_message must be >= 1, got %d", g.MaxMessage))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
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

// Load builds the configuration from defaults, the optional YAML file at
// path, and MANCALA_ environment variable overrides, then validates it.
//
// Precondition: path is empty or names a readable YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with MANCALA_ prefix
	v.SetEnvPrefix("MANCALA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
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

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		Telnet: TelnetConfig{
			Host:         "0.0.0.0",
			Port:         3000,
			WriteTimeout: 30 * time.Second,
		},
		Game: GameConfig{
			Pits:       6,
			Pebbles:    4,
			MaxName:    80,
			MaxMessage: 130,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("telnet.host", d.Telnet.Host)
	v.SetDefault("telnet.port", d.Telnet.Port)
	v.SetDefault("telnet.write_timeout", d.Telnet.WriteTimeout.String())

	v.SetDefault("game.pits", d.Game.Pits)
	v.SetDefault("game.pebbles", d.Game.Pebbles)
	v.SetDefault("game.max_name", d.Game.MaxName)
	v.SetDefault("game.max_message", d.Game.MaxMessage)
	v.SetDefault("game.messages_file", d.Game.MessagesFile)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
