package testutil

import (
	"context"
	"errors"
	"sync"

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

// ErrInjected is the default error returned by a failing FlakyRemote call.
var ErrInjected = errors.New("injected remote failure")

// FlakyRemote wraps a feed.Remote and fails selected calls on demand.
// Operation names are the Remote method names, e.g. "InsertLike".
type FlakyRemote struct {
	next feed.Remote

	mu      sync.Mutex
	failAll error
	fail    map[string]error
	calls   map[string]int
}

var _ feed.Remote = (*FlakyRemote)(nil)

// NewFlakyRemote wraps next. All calls pass through until a failure is set.
func NewFlakyRemote(next feed.Remote) *FlakyRemote {
	return &FlakyRemote{
		next:  next,
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Fail makes every call to op return err (ErrInjected if err is nil).
func (f *FlakyRemote) Fail(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// FailAll makes every call return err (ErrInjected if err is nil).
func (f *FlakyRemote) FailAll(err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = err
}

// Heal clears all injected failures.
func (f *FlakyRemote) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = nil
	f.fail = make(map[string]error)
}

// Calls returns how many times op was invoked, failed calls included.
func (f *FlakyRemote) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FlakyRemote) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failAll != nil {
		return f.failAll
	}
	return f.fail[op]
}

func (f *FlakyRemote) ListStories(ctx context.Context) ([]*model.Story, error) {
	if err := f.check("ListStories"); err != nil {
		return nil, err
	}
	return f.next.ListStories(ctx)
}

func (f *FlakyRemote) InsertStory(ctx context.Context, story *model.Story) (*model.Story, error) {
	if err := f.check("InsertStory"); err != nil {
		return nil, err
	}
	return f.next.InsertStory(ctx, story)
}

func (f *FlakyRemote) UpdateStoryStatus(ctx context.Context, id string, status model.Status, norms []model.Norm) error {
	if err := f.check("UpdateStoryStatus"); err != nil {
		return err
	}
	return f.next.UpdateStoryStatus(ctx, id, status, norms)
}

func (f *FlakyRemote) UpdateStoryContent(ctx context.Context, id, title, body string) (*model.Story, error) {
	if err := f.check("UpdateStoryContent"); err != nil {
		return nil, err
	}
	return f.next.UpdateStoryContent(ctx, id, title, body)
}

func (f *FlakyRemote) DeleteStory(ctx context.Context, id string) error {
	if err := f.check("DeleteStory"); err != nil {
		return err
	}
	return f.next.DeleteStory(ctx, id)
}

func (f *FlakyRemote) InsertReport(ctx context.Context, report *model.Report) error {
	if err := f.check("InsertReport"); err != nil {
		return err
	}
	return f.next.InsertReport(ctx, report)
}

func (f *FlakyRemote) ClearReports(ctx context.Context, storyID string) error {
	if err := f.check("ClearReports"); err != nil {
		return err
	}
	return f.next.ClearReports(ctx, storyID)
}

func (f *FlakyRemote) ListComments(ctx context.Context, storyID string) ([]*model.Comment, error) {
	if err := f.check("ListComments"); err != nil {
		return nil, err
	}
	return f.next.ListComments(ctx, storyID)
}

func (f *FlakyRemote) CommentCounts(ctx context.Context) (map[string]int, error) {
	if err := f.check("CommentCounts"); err != nil {
		return nil, err
	}
	return f.next.CommentCounts(ctx)
}

func (f *FlakyRemote) InsertComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	if err := f.check("InsertComment"); err != nil {
		return nil, err
	}
	return f.next.InsertComment(ctx, comment)
}

func (f *FlakyRemote) DeleteComment(ctx context.Context, id string) error {
	if err := f.check("DeleteComment"); err != nil {
		return err
	}
	return f.next.DeleteComment(ctx, id)
}

func (f *FlakyRemote) InsertLike(ctx context.Context, storyID, userID string) error {
	if err := f.check("InsertLike"); err != nil {
		return err
	}
	return f.next.InsertLike(ctx, storyID, userID)
}

func (f *FlakyRemote) DeleteLike(ctx context.Context, storyID, userID string) error {
	if err := f.check("DeleteLike"); err != nil {
		return err
	}
	return f.next.DeleteLike(ctx, storyID, userID)
}

func (f *FlakyRemote) ListLikes(ctx context.Context, userID string) ([]string, error) {
	if err := f.check("ListLikes"); err != nil {
		return nil, err
	}
	return f.next.ListLikes(ctx, userID)
}

func (f *FlakyRemote) InsertBookmark(ctx context.Context, storyID, userID string) error {
	if err := f.check("InsertBookmark"); err != nil {
		return err
	}
	return f.next.InsertBookmark(ctx, storyID, userID)
}

func (f *FlakyRemote) DeleteBookmark(ctx context.Context, storyID, userID string) error {
	if err := f.check("DeleteBookmark"); err != nil {
		return err
	}
	return f.next.DeleteBookmark(ctx, storyID, userID)
}

func (f *FlakyRemote) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	if err := f.check("ListBookmarks"); err != nil {
		return nil, err
	}
	return f.next.ListBookmarks(ctx, userID)
}

func (f *FlakyRemote) Close() error {
	return f.next.Close()
}
