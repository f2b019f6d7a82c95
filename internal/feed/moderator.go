package feed

import (
	"context"

	"storyfeed/internal/model"
)

// ContentModerator screens user text before it is accepted.
type ContentModerator interface {
	// Moderate classifies text. An error means the check itself failed,
	// not that the content is unsafe.
	Moderate(ctx context.Context, text string) (*model.ModerationResult, error)
}

// TextSanitizer strips markup from user-entered text.
type TextSanitizer interface {
	Sanitize(text string) string
}

type allowAll struct{}

func (allowAll) Moderate(context.Context, string) (*model.ModerationResult, error) {
	return &model.ModerationResult{Safe: true}, nil
}

type plainText struct{}

func (plainText) Sanitize(text string) string { return text }
