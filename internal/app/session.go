package app

import (
	"fmt"
	"os"

	"storyfeed/internal/auth"
	"storyfeed/internal/config"
	"storyfeed/internal/feed"
)

// ResolveSession builds the session from config. A token, when present,
// takes precedence over the explicit identity fields.
func ResolveSession(cfg config.SessionConfig) (feed.Session, error) {
	var session feed.Session
	if cfg.Token != "" {
		if cfg.SecretEnv == "" {
			return feed.Session{}, fmt.Errorf("session token set but secret_env is empty")
		}
		secret := os.Getenv(cfg.SecretEnv)
		if secret == "" {
			return feed.Session{}, fmt.Errorf("environment variable %s is not set", cfg.SecretEnv)
		}
		s, err := auth.ParseSessionToken(cfg.Token, []byte(secret))
		if err != nil {
			return feed.Session{}, err
		}
		session = s
	} else {
		session = feed.Session{
			UserID:      cfg.UserID,
			Role:        cfg.Role,
			DisplayName: cfg.DisplayName,
			Moderator:   cfg.Moderator,
		}
	}
	session.Online = !cfg.Offline
	return session, nil
}
