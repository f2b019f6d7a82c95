package feed

import (
	"context"
	"errors"

	"storyfeed/internal/model"
)

var (
	// ErrDuplicate is returned by Remote inserts that hit an existing row
	// (same user liking, bookmarking or reporting a story twice).
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotFound is returned by Remote updates and deletes that match no row.
	ErrNotFound = errors.New("record not found")
)

// Remote is the relational data service that persists stories and their
// child records. Implementations must be safe for concurrent use.
type Remote interface {
	// Story operations

	// ListStories returns every story, newest first. LikeCount and
	// CommentCount carry the server-side aggregates.
	ListStories(ctx context.Context) ([]*model.Story, error)

	// InsertStory persists a new story and returns the canonical record
	// with its server-assigned ID. The ID on the input is ignored.
	InsertStory(ctx context.Context, story *model.Story) (*model.Story, error)

	// UpdateStoryStatus sets the moderation status. norms is stored only
	// for StatusRejected and cleared otherwise.
	UpdateStoryStatus(ctx context.Context, id string, status model.Status, norms []model.Norm) error

	// UpdateStoryContent replaces title and body. When the stored status is
	// rejected it also resets the story to pending, increments the attempt
	// count and clears the rejected norms.
	UpdateStoryContent(ctx context.Context, id, title, body string) (*model.Story, error)

	// DeleteStory removes a story and its child records.
	DeleteStory(ctx context.Context, id string) error

	// Report operations

	// InsertReport records a report and increments the story's report count.
	// Returns ErrDuplicate if the user already reported the story.
	InsertReport(ctx context.Context, report *model.Report) error

	// ClearReports removes all reports for a story and zeroes its report count.
	ClearReports(ctx context.Context, storyID string) error

	// Comment operations

	// ListComments returns a story's comments, oldest first.
	ListComments(ctx context.Context, storyID string) ([]*model.Comment, error)

	// CommentCounts returns the number of comments per story ID, counted
	// from the comment rows themselves.
	CommentCounts(ctx context.Context) (map[string]int, error)

	// InsertComment persists a comment and returns it with its server ID.
	InsertComment(ctx context.Context, comment *model.Comment) (*model.Comment, error)

	// DeleteComment removes a comment.
	DeleteComment(ctx context.Context, id string) error

	// Like and bookmark operations. Inserts return ErrDuplicate when the
	// pair already exists; deletes of a missing pair succeed.

	InsertLike(ctx context.Context, storyID, userID string) error
	DeleteLike(ctx context.Context, storyID, userID string) error
	ListLikes(ctx context.Context, userID string) ([]string, error)

	InsertBookmark(ctx context.Context, storyID, userID string) error
	DeleteBookmark(ctx context.Context, storyID, userID string) error
	ListBookmarks(ctx context.Context, userID string) ([]string, error)

	// Close releases the underlying connection.
	Close() error
}
