package config

import (
	"fmt"
	"strings"

	"github.com/kestrelworks/roost/internal/logging"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate reports problems that cannot be corrected automatically.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Credentials.Token == "" {
		issues = append(issues, ValidationIssue{"credentials.token", "token is required"})
	}
	if cfg.Credentials.BotID == "" {
		issues = append(issues, ValidationIssue{"credentials.botId", "bot id is required"})
	}
	if !strings.HasPrefix(cfg.API.BaseURL, "http://") && !strings.HasPrefix(cfg.API.BaseURL, "https://") {
		issues = append(issues, ValidationIssue{"api.baseUrl", "must be an http(s) URL"})
	}
	if !strings.HasPrefix(cfg.API.SocketURL, "ws://") && !strings.HasPrefix(cfg.API.SocketURL, "wss://") {
		issues = append(issues, ValidationIssue{"api.socketUrl", "must be a ws(s) URL"})
	}
	return issues
}

// Normalize corrects bad tunables by falling back to defaults. Corrections
// are logged as warnings and returned; they are never fatal.
func Normalize(cfg *Config, log *logging.Logger) []ValidationIssue {
	var fixed []ValidationIssue

	fix := func(path, msg string) {
		issue := ValidationIssue{Path: path, Message: msg}
		fixed = append(fixed, issue)
		if log != nil {
			log.Warn().Str("path", path).Msg(msg + ", falling back to default")
		}
	}

	if cfg.Bot.Prefix == "" || strings.ContainsAny(cfg.Bot.Prefix, " \t\n") || len(cfg.Bot.Prefix) > 16 {
		fix("bot.prefix", fmt.Sprintf("invalid prefix %q", cfg.Bot.Prefix))
		cfg.Bot.Prefix = DefaultPrefix
	}
	if cfg.Bot.SendIntervalMs <= 0 {
		fix("bot.sendIntervalMs", "interval must be positive")
		cfg.Bot.SendIntervalMs = DefaultSendIntervalMs
	}
	if cfg.Reconnect.BaseDelayMs <= 0 {
		fix("reconnect.baseDelayMs", "delay must be positive")
		cfg.Reconnect.BaseDelayMs = DefaultBaseDelayMs
	}
	if cfg.Reconnect.MaxAttempts <= 0 {
		fix("reconnect.maxAttempts", "attempt cap must be positive")
		cfg.Reconnect.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Cache.TTLMinutes <= 0 {
		fix("cache.ttlMinutes", "ttl must be positive")
		cfg.Cache.TTLMinutes = DefaultCacheTTLMin
	}
	return fixed
}
