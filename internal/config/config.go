package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`    // HTTP server settings
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
	Storage   StorageConfig   `toml:"storage"`   // Data persistence settings
	Minecraft MinecraftConfig `toml:"minecraft"` // Bot session supervision settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path"`   // Path to the SQLite database file
	MaxChatLogs int    `toml:"max_chat_logs"` // Maximum number of chat log records returned per bot from the API
}

// MinecraftConfig contains bot session supervision settings
type MinecraftConfig struct {
	DefaultPort        int             `toml:"default_port"`            // Game server port used when a profile omits one (default: 25565)
	DialTimeoutSecs    int             `toml:"dial_timeout_seconds"`    // Timeout for establishing the protocol connection (default: 30)
	ReconnectDelaySecs int             `toml:"reconnect_delay_seconds"` // Delay before an automatic reconnect attempt (default: 5)
	LoginCommand       string          `toml:"login_command"`           // Command template sent after spawn when a password is set (default: "/login %s")
	LoginDelayMs       int             `toml:"login_delay_ms"`          // Delay before sending the login command after spawn (default: 1000)
	EventBufferSize    int             `toml:"event_buffer_size"`       // Per-session protocol event channel capacity (default: 64)
	OutboundSender     string          `toml:"outbound_sender"`         // Sender name attributed to outbound chat in the log (default: "Me")
	Responder          ResponderConfig `toml:"responder"`               // Whisper auto-responder settings
}

// ResponderConfig contains settings for the whisper auto-responder
type ResponderConfig struct {
	Enabled bool   `toml:"enabled"`  // Enable the auto-responder
	Trigger string `toml:"trigger"`  // Trigger phrase scanned for in inbound whispers (default: "tpmekaro")
	Command string `toml:"command"`  // Command template for the synthesized reply (default: "/tpahere %s")
	DelayMs int    `toml:"delay_ms"` // Delay before sending the synthesized reply (default: 500)
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.ApplyDefaults()

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// ApplyDefaults fills in unset fields with their defaults
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "minefleet.db"
	}
	if c.Storage.MaxChatLogs == 0 {
		c.Storage.MaxChatLogs = 100
	}

	mc := &c.Minecraft
	if mc.DefaultPort == 0 {
		mc.DefaultPort = 25565
	}
	if mc.DialTimeoutSecs == 0 {
		mc.DialTimeoutSecs = 30
	}
	if mc.ReconnectDelaySecs == 0 {
		mc.ReconnectDelaySecs = 5
	}
	if mc.LoginCommand == "" {
		mc.LoginCommand = "/login %s"
	}
	if mc.LoginDelayMs == 0 {
		mc.LoginDelayMs = 1000
	}
	if mc.EventBufferSize == 0 {
		mc.EventBufferSize = 64
	}
	if mc.OutboundSender == "" {
		mc.OutboundSender = "Me"
	}

	r := &mc.Responder
	if r.Trigger == "" {
		r.Trigger = "tpmekaro"
	}
	if r.Command == "" {
		r.Command = "/tpahere %s"
	}
	if r.DelayMs == 0 {
		r.DelayMs = 500
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q (must be debug, info, warn, or error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q (must be json or console)", c.Logging.Format)
	}

	// Validate minecraft config
	if c.Minecraft.DefaultPort <= 0 || c.Minecraft.DefaultPort > 65535 {
		return fmt.Errorf("invalid minecraft default port: %d", c.Minecraft.DefaultPort)
	}
	if c.Minecraft.ReconnectDelaySecs < 0 {
		return fmt.Errorf("invalid reconnect delay: %d (must be >= 0)", c.Minecraft.ReconnectDelaySecs)
	}
	if !strings.Contains(c.Minecraft.LoginCommand, "%s") {
		return fmt.Errorf("login_command must contain a %%s placeholder for the password")
	}
	if c.Minecraft.Responder.Enabled {
		if c.Minecraft.Responder.Trigger == "" {
			return fmt.Errorf("responder trigger must not be empty when the responder is enabled")
		}
		if !strings.Contains(c.Minecraft.Responder.Command, "%s") {
			return fmt.Errorf("responder command must contain a %%s placeholder for the target player")
		}
	}

	return nil
}
