package session

import "github.com/fitlive/livechat/internal/config"

// Resolve determines the active session id using precedence:
// 1. flagOverride (--session flag)
// 2. config.toml default_session
// Returns "" when neither is set; chat sessions have no implicit default.
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultSession != "" {
		return cfg.DefaultSession
	}
	return ""
}
