package feed

import (
	"errors"
	"fmt"
)

// Error is the normalized, user-meaningful error the store returns.
// Transport errors are logged and never returned directly.
type Error struct {
	Code     string
	Message  string
	Category string // sync, moderation, validation, data
	Action   string // what the user can do about it
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Error codes.
const (
	CodeSyncFailed        = "SYNC_FAILED"
	CodeContentRejected   = "CONTENT_REJECTED"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeStoryNotFound     = "STORY_NOT_FOUND"
	CodeCommentNotFound   = "COMMENT_NOT_FOUND"
	CodeCacheUnavailable  = "CACHE_UNAVAILABLE"
)

// ErrorCode returns the code of err if it is an *Error, or "" otherwise.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func newSyncFailedError(op string) *Error {
	return &Error{
		Code:     CodeSyncFailed,
		Message:  fmt.Sprintf("could not %s: the change was not saved", op),
		Category: "sync",
		Action:   "Check your connection and try again.",
	}
}

func newContentRejectedError(reason string) *Error {
	if reason == "" {
		reason = "content violates community guidelines"
	}
	return &Error{
		Code:     CodeContentRejected,
		Message:  "Content Rejected: " + reason,
		Category: "moderation",
		Action:   "Edit your text and submit it again.",
	}
}

func newInvalidTransitionError(event Event, reason string) *Error {
	return &Error{
		Code:     CodeInvalidTransition,
		Message:  fmt.Sprintf("cannot %s: %s", event, reason),
		Category: "validation",
		Action:   "Refresh the story and try again.",
	}
}

func newInvalidInputError(reason string) *Error {
	return &Error{
		Code:     CodeInvalidInput,
		Message:  reason,
		Category: "validation",
		Action:   "Correct the input and try again.",
	}
}

func newStoryNotFoundError(id string) *Error {
	return &Error{
		Code:     CodeStoryNotFound,
		Message:  fmt.Sprintf("story not found: %s", id),
		Category: "data",
		Action:   "Refresh the feed.",
	}
}

func newCommentNotFoundError(id string) *Error {
	return &Error{
		Code:     CodeCommentNotFound,
		Message:  fmt.Sprintf("comment not found: %s", id),
		Category: "data",
		Action:   "Reload the comments.",
	}
}

func newCacheUnavailableError() *Error {
	return &Error{
		Code:     CodeCacheUnavailable,
		Message:  "stories are unavailable offline",
		Category: "sync",
		Action:   "Connect to the internet and refresh.",
	}
}
