package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"storyfeed/internal/config"
	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

// AllowAll accepts every text. Used when moderation is disabled.
type AllowAll struct{}

var _ feed.ContentModerator = AllowAll{}

func (AllowAll) Moderate(context.Context, string) (*model.ModerationResult, error) {
	return &model.ModerationResult{Safe: true}, nil
}

// NewModeratorFromConfig creates a ContentModerator based on the moderation config type.
func NewModeratorFromConfig(cfg config.ModerationConfig, logger *slog.Logger) (feed.ContentModerator, error) {
	switch cfg.Type {
	case "", "none":
		return AllowAll{}, nil
	case "http":
		var apiKey string
		if cfg.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.APIKeyEnv)
		}
		return NewHTTPModerator(HTTPOptions{
			Endpoint:      cfg.Endpoint,
			APIKey:        apiKey,
			RatePerSecond: cfg.RatePerSecond,
			Timeout:       time.Duration(cfg.TimeoutSeconds) * time.Second,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unknown moderation type: %s", cfg.Type)
	}
}
