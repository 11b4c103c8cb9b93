package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `toml:"server" yaml:"server"`
	World     WorldConfig     `toml:"world" yaml:"world"`
	Slither   SlitherConfig   `toml:"slither" yaml:"slither"`
	Tick      TickConfig      `toml:"tick" yaml:"tick"`
	Wire      WireConfig      `toml:"wire" yaml:"wire"`
	RateLimit RateLimitConfig `toml:"rate_limit" yaml:"rate_limit"`
	Scripts   ScriptsConfig   `toml:"scripts" yaml:"scripts"`
	Journal   JournalConfig   `toml:"journal" yaml:"journal"`
	Bans      BansConfig      `toml:"bans" yaml:"bans"`
	Master    MasterConfig    `toml:"master" yaml:"master"`
}

type ServerConfig struct {
	Name string `toml:"name" yaml:"name"`
	Port int    `toml:"port" yaml:"port"`
	// WSPort enables the websocket listener when non-zero.
	WSPort     int `toml:"ws_port" yaml:"ws_port"`
	PingPort   int `toml:"ping_port" yaml:"ping_port"`
	MaxPlayers int `toml:"max_players" yaml:"max_players"`

	HandshakeTimeoutMs int `toml:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
	WriteTimeoutMs     int `toml:"write_timeout_ms" yaml:"write_timeout_ms"`
	SendQueue          int `toml:"send_queue" yaml:"send_queue"`
	IntentQueue        int `toml:"intent_queue" yaml:"intent_queue"`
	EventQueue         int `toml:"event_queue" yaml:"event_queue"`

	// logging configuration
	LogToFile bool `toml:"log_to_file" yaml:"log_to_file"`
}

type WorldConfig struct {
	Width       float32 `toml:"width" yaml:"width"`
	Height      float32 `toml:"height" yaml:"height"`
	InitialMass float32 `toml:"initial_mass" yaml:"initial_mass"`
	MinClotMass float32 `toml:"min_clot_mass" yaml:"min_clot_mass"`
	MaxClotMass float32 `toml:"max_clot_mass" yaml:"max_clot_mass"`
	Seed        int64   `toml:"seed" yaml:"seed"`
}

type SlitherConfig struct {
	InitialMass       float32 `toml:"initial_mass" yaml:"initial_mass"`
	SpeedCoef         float32 `toml:"speed_coef" yaml:"speed_coef"`
	SpeedModel        string  `toml:"speed_model" yaml:"speed_model"`
	MaxChangeDirSpeed float32 `toml:"max_change_dir_speed" yaml:"max_change_dir_speed"`
	BoostLossRate     float32 `toml:"boost_loss_rate" yaml:"boost_loss_rate"`
	MinBoostMass      float32 `toml:"min_boost_mass" yaml:"min_boost_mass"`
}

type TickConfig struct {
	MaxTPS          int `toml:"max_tps" yaml:"max_tps"`
	LeaderboardSize int `toml:"leaderboard_size" yaml:"leaderboard_size"`
}

type WireConfig struct {
	Codec        string `toml:"codec" yaml:"codec"`
	MaxFrameSize int    `toml:"max_frame_size" yaml:"max_frame_size"`
}

type RateLimitConfig struct {
	Enabled          bool `toml:"enabled" yaml:"enabled"`
	IntentsPerSecond int  `toml:"intents_per_second" yaml:"intents_per_second"`
	BurstSize        int  `toml:"burst_size" yaml:"burst_size"`
}

type ScriptsConfig struct {
	// Hooks is a lua file defining on_join, on_crash and on_disconnect.
	Hooks string `toml:"hooks" yaml:"hooks"`
}

type JournalConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Dir     string `toml:"dir" yaml:"dir"`
}

type BansConfig struct {
	// File holds the JSON ban list; it is created on the first ban.
	File string `toml:"file" yaml:"file"`
}

type MasterHost struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

type MasterConfig struct {
	Enabled bool         `toml:"enabled" yaml:"enabled"`
	Hosts   []MasterHost `toml:"hosts" yaml:"hosts"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadConfig reads a TOML file, or YAML when the extension is .yaml or .yml.
// An empty path yields Default().
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "slither arena"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7878
	}
	if c.Server.MaxPlayers == 0 {
		c.Server.MaxPlayers = 64
	}
	if c.Server.HandshakeTimeoutMs == 0 {
		c.Server.HandshakeTimeoutMs = 5000
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 2000
	}
	if c.Server.SendQueue == 0 {
		c.Server.SendQueue = 32
	}
	if c.Server.IntentQueue == 0 {
		c.Server.IntentQueue = 16
	}
	if c.Server.EventQueue == 0 {
		c.Server.EventQueue = 16
	}

	if c.World.Width == 0 {
		c.World.Width = 2000
	}
	if c.World.Height == 0 {
		c.World.Height = 2000
	}
	if c.World.InitialMass == 0 {
		c.World.InitialMass = 2000
	}
	if c.World.MinClotMass == 0 {
		c.World.MinClotMass = 10
	}
	if c.World.MaxClotMass == 0 {
		c.World.MaxClotMass = 25
	}

	if c.Slither.InitialMass == 0 {
		c.Slither.InitialMass = 100
	}
	if c.Slither.SpeedCoef == 0 {
		c.Slither.SpeedCoef = 600
	}
	if c.Slither.SpeedModel == "" {
		c.Slither.SpeedModel = "cbrt"
	}
	if c.Slither.MaxChangeDirSpeed == 0 {
		c.Slither.MaxChangeDirSpeed = 4
	}
	if c.Slither.BoostLossRate == 0 {
		c.Slither.BoostLossRate = 0.05
	}
	if c.Slither.MinBoostMass == 0 {
		c.Slither.MinBoostMass = 50
	}

	if c.Tick.MaxTPS == 0 {
		c.Tick.MaxTPS = 60
	}
	if c.Tick.LeaderboardSize == 0 {
		c.Tick.LeaderboardSize = 10
	}

	if c.Wire.Codec == "" {
		c.Wire.Codec = "bincode"
	}
	if c.Wire.MaxFrameSize == 0 {
		c.Wire.MaxFrameSize = 64 * 1024
	}

	if c.RateLimit.IntentsPerSecond == 0 {
		c.RateLimit.IntentsPerSecond = 120
	}
	if c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = 30
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "journal"
	}

	if c.Bans.File == "" {
		c.Bans.File = "data/bans.json"
	}
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server name cannot be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if c.Server.WSPort < 0 || c.Server.WSPort > 65535 {
		return fmt.Errorf("invalid ws_port: %d", c.Server.WSPort)
	}

	if c.Server.WSPort != 0 && c.Server.WSPort == c.Server.Port {
		return fmt.Errorf("ws_port must differ from port")
	}

	if c.Server.PingPort < 0 || c.Server.PingPort > 65535 {
		return fmt.Errorf("invalid ping_port: %d", c.Server.PingPort)
	}

	if c.Server.MaxPlayers <= 0 {
		return fmt.Errorf("max_players must be positive")
	}

	if c.Server.SendQueue <= 0 || c.Server.IntentQueue <= 0 || c.Server.EventQueue <= 0 {
		return fmt.Errorf("queue sizes must be positive")
	}

	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("world size must be positive, got %gx%g", c.World.Width, c.World.Height)
	}

	if c.World.InitialMass < 0 {
		return fmt.Errorf("world initial_mass cannot be negative")
	}

	if c.World.MinClotMass <= 0 || c.World.MaxClotMass <= c.World.MinClotMass {
		return fmt.Errorf("clot mass range must satisfy 0 < min < max, got [%g, %g)", c.World.MinClotMass, c.World.MaxClotMass)
	}

	if c.Slither.InitialMass <= 0 {
		return fmt.Errorf("slither initial_mass must be positive")
	}

	if c.Slither.SpeedCoef <= 0 {
		return fmt.Errorf("speed_coef must be positive")
	}

	switch c.Slither.SpeedModel {
	case "cbrt", "linear":
	default:
		return fmt.Errorf("unknown speed_model %q", c.Slither.SpeedModel)
	}

	if c.Slither.MaxChangeDirSpeed <= 0 {
		return fmt.Errorf("max_change_dir_speed must be positive")
	}

	if c.Slither.BoostLossRate < 0 || c.Slither.BoostLossRate >= 1 {
		return fmt.Errorf("boost_loss_rate must be in [0, 1)")
	}

	if c.Tick.MaxTPS <= 0 || c.Tick.MaxTPS > 1000 {
		return fmt.Errorf("max_tps must be between 1 and 1000")
	}

	if c.Tick.LeaderboardSize <= 0 {
		return fmt.Errorf("leaderboard_size must be positive")
	}

	switch c.Wire.Codec {
	case "bincode", "msgpack":
	default:
		return fmt.Errorf("unknown codec %q", c.Wire.Codec)
	}

	if c.Wire.MaxFrameSize <= 0 {
		return fmt.Errorf("max_frame_size must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.IntentsPerSecond <= 0 || c.RateLimit.BurstSize <= 0) {
		return fmt.Errorf("rate limit needs positive intents_per_second and burst_size")
	}

	if c.Master.Enabled && len(c.Master.Hosts) == 0 {
		return fmt.Errorf("master announcing enabled without hosts")
	}

	return nil
}

func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Tick.MaxTPS)
}

func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Server.HandshakeTimeoutMs) * time.Millisecond
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutMs) * time.Millisecond
}
