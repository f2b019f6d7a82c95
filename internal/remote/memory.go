package remote

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
)

var _ feed.Remote = (*MemoryRemote)(nil)

type pair struct{ storyID, userID string }

// MemoryRemote is an in-process feed.Remote for tests and demos.
// It follows the same duplicate and not-found rules as SQLRemote.
type MemoryRemote struct {
	mu        sync.Mutex
	stories   map[string]*model.Story
	comments  map[string]*model.Comment
	reports   map[pair]*model.Report
	likes     map[pair]time.Time
	bookmarks map[pair]time.Time
	now       func() time.Time
}

// NewMemoryRemote creates an empty MemoryRemote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		stories:   make(map[string]*model.Story),
		comments:  make(map[string]*model.Comment),
		reports:   make(map[pair]*model.Report),
		likes:     make(map[pair]time.Time),
		bookmarks: make(map[pair]time.Time),
		now:       time.Now,
	}
}

// Seed stores a story as-is, keeping its ID. For tests and demos.
func (m *MemoryRemote) Seed(story *model.Story) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stories[story.ID] = story.Clone()
}

func (m *MemoryRemote) Close() error { return nil }

func (m *MemoryRemote) likeCount(storyID string) int {
	n := 0
	for p := range m.likes {
		if p.storyID == storyID {
			n++
		}
	}
	return n
}

func (m *MemoryRemote) ListStories(ctx context.Context) ([]*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*model.Story, 0, len(m.stories))
	for _, st := range m.stories {
		c := st.Clone()
		c.LikeCount = m.likeCount(st.ID)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRemote) InsertStory(ctx context.Context, story *model.Story) (*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := story.Clone()
	st.ID = uuid.New().String()
	st.Status = model.StatusPending
	st.RejectedNorms = nil
	st.ReportCount, st.LikeCount, st.CommentCount = 0, 0, 0
	st.AttemptCount = max(st.AttemptCount, 1)
	if st.CreatedAt.IsZero() {
		st.CreatedAt = m.now()
	}
	st.UpdatedAt = st.CreatedAt
	m.stories[st.ID] = st
	return st.Clone(), nil
}

func (m *MemoryRemote) UpdateStoryStatus(ctx context.Context, id string, status model.Status, norms []model.Norm) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stories[id]
	if !ok {
		return feed.ErrNotFound
	}
	st.Status = status
	st.RejectedNorms = nil
	if status == model.StatusRejected {
		st.RejectedNorms = slices.Clone(norms)
	}
	st.UpdatedAt = m.now()
	return nil
}

func (m *MemoryRemote) UpdateStoryContent(ctx context.Context, id, title, body string) (*model.Story, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stories[id]
	if !ok {
		return nil, feed.ErrNotFound
	}
	st.Title, st.Body = title, body
	if st.Status == model.StatusRejected {
		st.Status = model.StatusPending
		st.AttemptCount++
		st.RejectedNorms = nil
	}
	st.UpdatedAt = m.now()

	c := st.Clone()
	c.LikeCount = m.likeCount(id)
	return c, nil
}

func (m *MemoryRemote) DeleteStory(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[id]; !ok {
		return feed.ErrNotFound
	}
	delete(m.stories, id)
	for cid, c := range m.comments {
		if c.StoryID == id {
			delete(m.comments, cid)
		}
	}
	for _, set := range []map[pair]time.Time{m.likes, m.bookmarks} {
		for p := range set {
			if p.storyID == id {
				delete(set, p)
			}
		}
	}
	for p := range m.reports {
		if p.storyID == id {
			delete(m.reports, p)
		}
	}
	return nil
}

func (m *MemoryRemote) InsertReport(ctx context.Context, report *model.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stories[report.StoryID]
	if !ok {
		return feed.ErrNotFound
	}
	key := pair{report.StoryID, report.UserID}
	if _, dup := m.reports[key]; dup {
		return feed.ErrDuplicate
	}
	r := *report
	r.ID = uuid.New().String()
	m.reports[key] = &r
	st.ReportCount++
	return nil
}

func (m *MemoryRemote) ClearReports(ctx context.Context, storyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stories[storyID]
	if !ok {
		return feed.ErrNotFound
	}
	for p := range m.reports {
		if p.storyID == storyID {
			delete(m.reports, p)
		}
	}
	st.ReportCount = 0
	return nil
}

// Reports returns the stored reports for a story. For tests.
func (m *MemoryRemote) Reports(storyID string) []model.Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Report
	for p, r := range m.reports {
		if p.storyID == storyID {
			out = append(out, *r)
		}
	}
	return out
}

func (m *MemoryRemote) ListComments(ctx context.Context, storyID string) ([]*model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*model.Comment
	for _, c := range m.comments {
		if c.StoryID == storyID {
			out = append(out, c.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRemote) CommentCounts(ctx context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[string]int)
	for _, c := range m.comments {
		counts[c.StoryID]++
	}
	return counts, nil
}

func (m *MemoryRemote) InsertComment(ctx context.Context, comment *model.Comment) (*model.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.stories[comment.StoryID]
	if !ok {
		return nil, feed.ErrNotFound
	}
	c := comment.Clone()
	c.ID = uuid.New().String()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	m.comments[c.ID] = c
	st.CommentCount++
	return c.Clone(), nil
}

func (m *MemoryRemote) DeleteComment(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.comments[id]
	if !ok {
		return feed.ErrNotFound
	}
	delete(m.comments, id)
	if st, ok := m.stories[c.StoryID]; ok && st.CommentCount > 0 {
		st.CommentCount--
	}
	return nil
}

func (m *MemoryRemote) insertPair(set map[pair]time.Time, storyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.stories[storyID]; !ok {
		return feed.ErrNotFound
	}
	key := pair{storyID, userID}
	if _, dup := set[key]; dup {
		return feed.ErrDuplicate
	}
	set[key] = m.now()
	return nil
}

func (m *MemoryRemote) deletePair(set map[pair]time.Time, storyID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(set, pair{storyID, userID})
	return nil
}

func (m *MemoryRemote) listPairs(set map[pair]time.Time, userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for p := range set {
		if p.userID == userID {
			ids = append(ids, p.storyID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (m *MemoryRemote) InsertLike(ctx context.Context, storyID, userID string) error {
	return m.insertPair(m.likes, storyID, userID)
}

func (m *MemoryRemote) DeleteLike(ctx context.Context, storyID, userID string) error {
	return m.deletePair(m.likes, storyID, userID)
}

func (m *MemoryRemote) ListLikes(ctx context.Context, userID string) ([]string, error) {
	return m.listPairs(m.likes, userID), nil
}

func (m *MemoryRemote) InsertBookmark(ctx context.Context, storyID, userID string) error {
	return m.insertPair(m.bookmarks, storyID, userID)
}

func (m *MemoryRemote) DeleteBookmark(ctx context.Context, storyID, userID string) error {
	return m.deletePair(m.bookmarks, storyID, userID)
}

func (m *MemoryRemote) ListBookmarks(ctx context.Context, userID string) ([]string, error) {
	return m.listPairs(m.bookmarks, userID), nil
}
