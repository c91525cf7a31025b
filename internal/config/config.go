// Package config loads and validates the bot configuration from YAML and
// environment variables.
package config

// Config is the root configuration for a roost bot.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	API         APIConfig         `yaml:"api,omitempty"`
	Bot         BotConfig         `yaml:"bot,omitempty"`
	Reconnect   ReconnectConfig   `yaml:"reconnect,omitempty"`
	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
}

// CredentialsConfig carries the opaque platform credentials. Both values are
// passed through to the platform unchanged.
type CredentialsConfig struct {
	Token string `yaml:"token" env:"ROOST_TOKEN"`
	BotID string `yaml:"botId" env:"ROOST_BOT_ID"`
}

// APIConfig points at the platform endpoints.
type APIConfig struct {
	BaseURL   string `yaml:"baseUrl" env:"ROOST_API_URL"`
	SocketURL string `yaml:"socketUrl" env:"ROOST_SOCKET_URL"`
}

// BotConfig controls dispatch behavior.
type BotConfig struct {
	// Prefix marks messages as commands. Bad values fall back to the
	// default with a warning; they are never fatal.
	Prefix string `yaml:"prefix" env:"ROOST_PREFIX"`
	// EchoErrors sends command failures back to the originating server as
	// an error embed.
	EchoErrors bool `yaml:"echoErrors"`
	// SendIntervalMs is the minimum gap between sends to one server.
	SendIntervalMs int `yaml:"sendIntervalMs"`
}

// ReconnectConfig tunes the socket backoff schedule.
type ReconnectConfig struct {
	BaseDelayMs int `yaml:"baseDelayMs"`
	MaxAttempts int `yaml:"maxAttempts"`
}

// CacheConfig tunes the REST lookup cache.
type CacheConfig struct {
	TTLMinutes int `yaml:"ttlMinutes"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level" env:"ROOST_LOG_LEVEL"`
}

// Default values applied by Defaults and restored by Normalize.
const (
	DefaultPrefix         = "!"
	DefaultSendIntervalMs = 1000
	DefaultBaseDelayMs    = 1000
	DefaultMaxAttempts    = 5
	DefaultCacheTTLMin    = 30
	DefaultBaseURL        = "https://api.roost.chat/v1"
	DefaultSocketURL      = "wss://ws.roost.chat/v1"
)

// Defaults returns a Config with every tunable at its default.
func Defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL:   DefaultBaseURL,
			SocketURL: DefaultSocketURL,
		},
		Bot: BotConfig{
			Prefix:         DefaultPrefix,
			SendIntervalMs: DefaultSendIntervalMs,
		},
		Reconnect: ReconnectConfig{
			BaseDelayMs: DefaultBaseDelayMs,
			MaxAttempts: DefaultMaxAttempts,
		},
		Cache: CacheConfig{
			TTLMinutes: DefaultCacheTTLMin,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
