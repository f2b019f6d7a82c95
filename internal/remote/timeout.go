package remote

import (
	"context"
	"time"

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

// DefaultTimeout bounds each remote call when no timeout is configured.
const DefaultTimeout = 15 * time.Second

var _ feed.Remote = (*TimeoutRemote)(nil)

// TimeoutRemote bounds every call to the wrapped Remote with a deadline.
// A call that runs out of time fails like any other remote error.
type TimeoutRemote struct {
	next    feed.Remote
	timeout time.Duration
}

// WithTimeout wraps next. A non-positive d uses DefaultTimeout.
func WithTimeout(next feed.Remote, d time.Duration) *TimeoutRemote {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &TimeoutRemote{next: next, timeout: d}
}

func (t *TimeoutRemote) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, t.timeout)
}

func (t *TimeoutRemote) ListStories(ctx context.Context) ([]*model.Story, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListStories(ctx)
}

func (t *TimeoutRemote) InsertStory(ctx context.Context, story *model.Story) (*model.Story, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.InsertStory(ctx, story)
}

func (t *TimeoutRemote) UpdateStoryStatus(ctx context.Context, id string, status model.Status, norms []model.Norm) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateStoryStatus(ctx, id, status, norms)
}

func (t *TimeoutRemote) UpdateStoryContent(ctx context.Context, id, title, body string) (*model.Story, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.UpdateStoryContent(ctx, id, title, body)
}

func (t *TimeoutRemote) DeleteStory(ctx context.Context, id string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeleteStory(ctx, id)
}

func (t *TimeoutRemote) InsertReport(ctx context.Context, report *model.Report) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.InsertReport(ctx, report)
}

func (t *TimeoutRemote) ClearReports(ctx context.Context, storyID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ClearReports(ctx, storyID)
}

func (t *TimeoutRemote) ListComments(ctx context.Context, storyID string) ([]*model.Comment, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListComments(ctx, storyID)
}

func (t *TimeoutRemote) CommentCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.CommentCounts(ctx)
}

func (t *TimeoutRemote) InsertComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.InsertComment(ctx, comment)
}

func (t *TimeoutRemote) DeleteComment(ctx context.Context, id string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeleteComment(ctx, id)
}

func (t *TimeoutRemote) InsertLike(ctx context.Context, storyID, userID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.InsertLike(ctx, storyID, userID)
}

func (t *TimeoutRemote) DeleteLike(ctx context.Context, storyID, userID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeleteLike(ctx, storyID, userID)
}

func (t *TimeoutRemote) ListLikes(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListLikes(ctx, userID)
}

func (t *TimeoutRemote) InsertBookmark(ctx context.Context, storyID, userID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.InsertBookmark(ctx, storyID, userID)
}

func (t *TimeoutRemote) DeleteBookmark(ctx context.Context, storyID, userID string) error {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.DeleteBookmark(ctx, storyID, userID)
}

func (t *TimeoutRemote) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := t.ctx(ctx)
	defer cancel()
	return t.next.ListBookmarks(ctx, userID)
}

func (t *TimeoutRemote) Close() error {
	return t.next.Close()
}
