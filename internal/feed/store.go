package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"sync"

	"storyfeed/internal/model"
)

// Options holds the StoryStore's optional collaborators. Nil fields get
// working defaults: no content moderation, no sanitizing, no metrics,
// no logging, the real clock and UUIDs.
type Options struct {
	Moderator ContentModerator
	Sanitizer TextSanitizer
	Metrics   Metrics
	Logger    Logger
	Clock     Clock
	IDGen     IDGenerator

	// ScreenStories runs story submissions and edits through the
	// moderator as well as comments.
	ScreenStories bool
}

// StoryStore is the session's single source of truth for stories. Screens
// read through its accessors, which return copies; every write goes through
// an optimistic command that is rolled back if the remote write fails.
type StoryStore struct {
	remote        Remote
	cache         Cache
	session       Session
	moderator     ContentModerator
	sanitizer     TextSanitizer
	metrics       Metrics
	logger        Logger
	clock         Clock
	idgen         IDGenerator
	screenStories bool

	// session is written under both opMu and mu, so holding either is
	// enough to read it.
	opMu  sync.Mutex   // serializes commands and refreshes
	mu    sync.RWMutex // guards state, stale and session
	state *state
	stale bool
}

// NewStoryStore creates a store for session backed by remote and cache.
func NewStoryStore(remote Remote, cache Cache, session Session, opts Options) *StoryStore {
	s := &StoryStore{
		remote:        remote,
		cache:         cache,
		session:       session,
		moderator:     opts.Moderator,
		sanitizer:     opts.Sanitizer,
		metrics:       opts.Metrics,
		logger:        opts.Logger,
		clock:         opts.Clock,
		idgen:         opts.IDGen,
		screenStories: opts.ScreenStories,
		state:         newState(),
	}
	if s.moderator == nil {
		s.moderator = allowAll{}
	}
	if s.sanitizer == nil {
		s.sanitizer = plainText{}
	}
	if s.metrics == nil {
		s.metrics = NopMetrics{}
	}
	if s.logger == nil {
		s.logger = discardLogger()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.idgen == nil {
		s.idgen = UUIDGenerator{}
	}
	return s
}

// Session returns the session the store was built for.
func (s *StoryStore) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// canOpen reports whether the session may open story: anything its
// moderation listing or report queue would show it. Callers hold mu.
func (s *StoryStore) canOpen(story *model.Story) bool {
	if story == nil {
		return false
	}
	if s.session.Moderator && story.Status == model.StatusApproved && story.ReportCount > 0 {
		return true
	}
	return visibleIn(story, s.session.Viewer(), ModeModeration)
}

// SetOnline updates the session's connectivity flag. While offline, writes
// roll back immediately and refreshes serve the cache.
func (s *StoryStore) SetOnline(online bool) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	s.session.Online = online
	s.mu.Unlock()
}

// Load seeds the store from the durable cache. Call it on cold start,
// before the first Refresh resolves. An empty cache is not an error.
func (s *StoryStore) Load(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	cached, err := s.readCache(ctx)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		s.logger.Warn("reading story cache failed", "error", err)
		return newCacheUnavailableError()
	}

	s.mu.Lock()
	s.state = cached
	s.stale = true
	s.mu.Unlock()
	s.logger.Debug("stories loaded from cache", "count", len(cached.stories))
	return nil
}

// Refresh replaces the collection with the remote's. Local speculative
// state is discarded and comment counts are rebuilt from comment rows.
// If the remote cannot be read the last cached collection is served and
// Stale reports true.
func (s *StoryStore) Refresh(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.session.Online {
		return s.fallback(ctx, errOffline)
	}

	stories, err := s.remote.ListStories(ctx)
	if err != nil {
		return s.fallback(ctx, err)
	}

	next := newState()
	for _, st := range stories {
		if st.AuthorID == "" {
			s.logger.Error("dropping story without author", "story_id", st.ID)
			continue
		}
		next.stories = append(next.stories, st.Clone())
	}
	SortStories(next.stories, SortNewest)

	if counts, err := s.remote.CommentCounts(ctx); err != nil {
		s.logger.Warn("loading comment counts failed, keeping listed counts", "error", err)
	} else {
		for _, st := range next.stories {
			st.CommentCount = counts[st.ID]
		}
	}

	s.mu.RLock()
	current := s.state
	s.mu.RUnlock()

	next.likes = s.loadMembership(ctx, "likes", s.remote.ListLikes, current.likes)
	next.bookmarks = s.loadMembership(ctx, "bookmarks", s.remote.ListBookmarks, current.bookmarks)
	for id, list := range current.comments {
		if next.find(id) != nil {
			next.comments[id] = list
		}
	}

	s.mu.Lock()
	s.state = next
	s.stale = false
	s.mu.Unlock()

	s.logger.Info("stories refreshed", "count", len(next.stories))
	s.persist(ctx)
	return nil
}

func (s *StoryStore) loadMembership(ctx context.Context, name string, list func(context.Context, string) ([]string, error), current map[string]bool) map[string]bool {
	if s.session.UserID == "" {
		return make(map[string]bool)
	}
	ids, err := list(ctx, s.session.UserID)
	if err != nil {
		s.logger.Warn("loading membership failed, keeping local set", "set", name, "error", err)
		out := make(map[string]bool, len(current))
		for id := range current {
			out[id] = true
		}
		return out
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

// fallback serves the cached collection after a failed remote read.
func (s *StoryStore) fallback(ctx context.Context, cause error) error {
	s.logger.Warn("refresh failed, serving cached stories", "error", cause)
	s.metrics.RecordCacheFallback()

	cached, err := s.readCache(ctx)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stale = true
		if len(s.state.stories) > 0 {
			// The in-memory collection is the last one written to the cache.
			return nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("reading story cache failed", "error", err)
		}
		return newCacheUnavailableError()
	}

	s.mu.Lock()
	for id, list := range s.state.comments {
		if cached.find(id) != nil {
			cached.comments[id] = list
		}
	}
	s.state = cached
	s.stale = true
	s.mu.Unlock()
	return nil
}

// Stale reports whether the collection came from the cache rather than
// a successful refresh.
func (s *StoryStore) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// persist writes the collection and membership sets to the durable cache.
// Failures are logged; the in-memory state stays authoritative.
func (s *StoryStore) persist(ctx context.Context) {
	s.mu.RLock()
	values := map[string]any{
		CacheKeyStories:   s.state.stories,
		CacheKeyLikes:     sortedKeys(s.state.likes),
		CacheKeyBookmarks: sortedKeys(s.state.bookmarks),
	}
	encoded := make(map[string][]byte, len(values))
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("encoding cache value failed", "key", key, "error", err)
			continue
		}
		encoded[key] = data
	}
	s.mu.RUnlock()

	for key, data := range encoded {
		if err := s.cache.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
			s.logger.Warn("writing cache failed", "key", key, "error", err)
		}
	}
}

// readCache decodes the cached collection. A missing stories key is
// reported as ErrCacheMiss; missing membership keys are treated as empty.
func (s *StoryStore) readCache(ctx context.Context) (*state, error) {
	st := newState()

	var buf bytes.Buffer
	if err := s.cache.Get(ctx, CacheKeyStories, &buf); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(buf.Bytes(), &st.stories); err != nil {
		return nil, err
	}
	st.stories = slices.DeleteFunc(st.stories, func(story *model.Story) bool {
		return story == nil || story.AuthorID == ""
	})

	for key, set := range map[string]map[string]bool{CacheKeyLikes: st.likes, CacheKeyBookmarks: st.bookmarks} {
		buf.Reset()
		if err := s.cache.Get(ctx, key, &buf); err != nil {
			if errors.Is(err, ErrCacheMiss) {
				continue
			}
			return nil, err
		}
		var ids []string
		if err := json.Unmarshal(buf.Bytes(), &ids); err != nil {
			return nil, err
		}
		for _, id := range ids {
			set[id] = true
		}
	}
	return st, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Accessors

// Stories returns a copy of the whole collection, newest first.
func (s *StoryStore) Stories() []*model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStories(s.state.stories)
}

// Story returns a copy of the story with id.
func (s *StoryStore) Story(id string) (*model.Story, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.find(id)
	if st == nil {
		return nil, false
	}
	return st.Clone(), true
}

// Open returns a copy of the story with id if the session may open it.
// Hidden stories are reported as missing.
func (s *StoryStore) Open(id string) (*model.Story, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state.find(id)
	if !s.canOpen(st) {
		return nil, false
	}
	return st.Clone(), true
}

// ListOptions selects and orders a listing.
type ListOptions struct {
	Mode ListMode
	Sort SortMode
}

// List returns the stories the session's viewer may see in opts.Mode,
// filtered first and then sorted.
func (s *StoryStore) List(opts ListOptions) []*model.Story {
	s.mu.RLock()
	out := cloneStories(Filter(s.state.stories, s.session.Viewer(), opts.Mode))
	s.mu.RUnlock()
	SortStories(out, opts.Sort)
	return out
}

// ReportQueue returns approved stories with open reports, most reported
// first. It is empty for non-moderators.
func (s *StoryStore) ReportQueue() []*model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.session.Moderator {
		return nil
	}
	var out []*model.Story
	for _, st := range s.state.stories {
		if st.Status == model.StatusApproved && st.ReportCount > 0 {
			out = append(out, st.Clone())
		}
	}
	slices.SortStableFunc(out, func(a, b *model.Story) int {
		return b.ReportCount - a.ReportCount
	})
	return out
}

// Bookmarks returns the bookmarked stories the viewer can still see, for
// offline reading.
func (s *StoryStore) Bookmarks() []*model.Story {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Story
	for _, st := range s.state.stories {
		if s.state.bookmarks[st.ID] && IsVisible(st, s.session.Role, s.session.UserID) {
			out = append(out, st.Clone())
		}
	}
	return out
}

// IsLiked reports whether the session's user likes the story.
func (s *StoryStore) IsLiked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.likes[id]
}

// IsBookmarked reports whether the session's user bookmarked the story.
func (s *StoryStore) IsBookmarked(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.bookmarks[id]
}

// Comments returns the loaded comments of a story, oldest first.
func (s *StoryStore) Comments(storyID string) []*model.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.state.comments[storyID]
	out := make([]*model.Comment, len(list))
	for i, c := range list {
		out[i] = c.Clone()
	}
	return out
}

func cloneStories(stories []*model.Story) []*model.Story {
	out := make([]*model.Story, len(stories))
	for i, st := range stories {
		out[i] = st.Clone()
	}
	return out
}
