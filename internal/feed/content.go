package feed

import (
	"context"
	"strings"
)

// clean sanitizes user-entered text and trims surrounding whitespace.
func (s *StoryStore) clean(text string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(text))
}

// screen runs text through the content moderator. A failed check lets the
// text through; an unsafe verdict rejects it.
func (s *StoryStore) screen(ctx context.Context, text string) error {
	result, err := s.moderator.Moderate(ctx, text)
	if err != nil {
		s.logger.Warn("content moderation unavailable, accepting text", "error", err)
		s.metrics.RecordModerationFailOpen()
		return nil
	}
	if result != nil && !result.Safe {
		s.logger.Info("content rejected by moderation", "reason", result.Reason)
		return newContentRejectedError(result.Reason)
	}
	return nil
}

// requireUser returns a snapshot of the session, or an error when it is
// signed out.
func (s *StoryStore) requireUser(action string) (Session, error) {
	session := s.Session()
	if session.UserID == "" {
		return session, newInvalidInputError("sign in to " + action)
	}
	return session, nil
}

