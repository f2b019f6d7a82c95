package feed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"storyfeed/internal/feed"
	"storyfeed/internal/model"
	"storyfeed/internal/remote"
	"storyfeed/internal/testutil"
)

var base = testutil.Epoch

var (
	parentSession    = feed.Session{UserID: "parent-1", Role: model.RoleParent, DisplayName: "Pat", Online: true}
	authorSession    = feed.Session{UserID: "author-1", Role: model.RoleParent, DisplayName: "Alex", Online: true}
	moderatorSession = feed.Session{UserID: "mod-1", Role: model.RoleStaff, DisplayName: "Morgan", Moderator: true, Online: true}
)

func seed(id, author string, status model.Status, age time.Duration, audiences ...string) *model.Story {
	return &model.Story{
		ID:                id,
		AuthorID:          author,
		Title:             "Story " + id,
		Body:              "Body of " + id,
		AuthorDisplayName: "Alex",
		AuthorDisplayRole: model.RoleParent,
		CreatedAt:         base.Add(-age),
		UpdatedAt:         base.Add(-age),
		Status:            status,
		AttemptCount:      1,
		TargetAudiences:   audiences,
	}
}

type fixture struct {
	remote *remote.MemoryRemote
	flaky  *testutil.FlakyRemote
	cache  feed.Cache
	clock  *testutil.StubClock
}

func newFixture(stories ...*model.Story) *fixture {
	r := testutil.NewTestRemote()
	for _, s := range stories {
		r.Seed(s)
	}
	return &fixture{
		remote: r,
		flaky:  testutil.NewFlakyRemote(r),
		cache:  testutil.NewTestCache(),
		clock:  testutil.FixedClock(),
	}
}

// open builds a store for session over the fixture's remote and cache and
// refreshes it.
func (f *fixture) open(t *testing.T, session feed.Session, opts ...func(*feed.Options)) *feed.StoryStore {
	t.Helper()
	o := feed.Options{Clock: f.clock, IDGen: testutil.NewStoryIDs()}
	for _, fn := range opts {
		fn(&o)
	}
	s := feed.NewStoryStore(f.flaky, f.cache, session, o)
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	return s
}

func mustStory(t *testing.T, s *feed.StoryStore, id string) *model.Story {
	t.Helper()
	st, ok := s.Story(id)
	if !ok {
		t.Fatalf("story %s not in store", id)
	}
	return st
}

func TestStoryStore_Refresh(t *testing.T) {
	f := newFixture(
		seed("old", "author-1", model.StatusApproved, 3*time.Hour),
		seed("new", "author-1", model.StatusApproved, time.Hour),
		seed("orphan", "", model.StatusApproved, 2*time.Hour),
	)
	ctx := context.Background()
	if _, err := f.remote.InsertComment(ctx, &model.Comment{StoryID: "old", AuthorID: "u", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := f.remote.InsertLike(ctx, "new", "parent-1"); err != nil {
		t.Fatal(err)
	}

	s := f.open(t, parentSession)

	if diff := cmp.Diff([]string{"new", "old"}, ids(s.Stories())); diff != "" {
		t.Errorf("Stories() mismatch (-want +got):\n%s", diff)
	}
	if got := mustStory(t, s, "old").CommentCount; got != 1 {
		t.Errorf("CommentCount = %d, want 1", got)
	}
	if got := mustStory(t, s, "new").LikeCount; got != 1 {
		t.Errorf("LikeCount = %d, want 1", got)
	}
	if !s.IsLiked("new") {
		t.Error("IsLiked(new) = false, want true")
	}
	if s.Stale() {
		t.Error("Stale() = true after successful refresh")
	}
}

func TestStoryStore_RefreshRebuildsCommentCount(t *testing.T) {
	st := seed("s1", "author-1", model.StatusApproved, time.Hour)
	st.CommentCount = 7
	f := newFixture(st)

	s := f.open(t, parentSession)
	if got := mustStory(t, s, "s1").CommentCount; got != 0 {
		t.Errorf("CommentCount = %d, want 0 from comment rows", got)
	}
}

func TestStoryStore_Accessors_ReturnCopies(t *testing.T) {
	f := newFixture(seed("s1", "author-1", model.StatusApproved, time.Hour))
	s := f.open(t, parentSession)

	got := mustStory(t, s, "s1")
	got.Title = "mutated"
	s.Stories()[0].Status = model.StatusRejected

	again := mustStory(t, s, "s1")
	if again.Title == "mutated" || again.Status != model.StatusApproved {
		t.Errorf("store state changed through accessor copy: %+v", again)
	}
}

func TestStoryStore_CreateStory(t *testing.T) {
	f := newFixture()
	s := f.open(t, authorSession, func(o *feed.Options) {
		o.Sanitizer = stripTags{}
	})

	created, err := s.CreateStory(context.Background(), model.StoryDraft{
		Title:           "  <i>Field trip</i> ",
		Body:            "Permission slips are due.",
		TargetAudiences: []string{model.AudienceParents},
	})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if feed.IsTempID(created.ID) {
		t.Errorf("ID = %q, want server id", created.ID)
	}
	if created.Title != "Field trip" {
		t.Errorf("Title = %q, want sanitized and trimmed", created.Title)
	}
	if created.Status != model.StatusPending || created.AttemptCount != 1 {
		t.Errorf("Status = %q, AttemptCount = %d, want pending/1", created.Status, created.AttemptCount)
	}

	stories := s.Stories()
	if len(stories) != 1 || stories[0].ID != created.ID {
		t.Fatalf("Stories() = %v, want only the created story", ids(stories))
	}
	if !created.CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("CreatedAt = %v, want clock time", created.CreatedAt)
	}
}

func TestStoryStore_CreateStory_Anonymous(t *testing.T) {
	f := newFixture()
	s := f.open(t, authorSession)

	created, err := s.CreateStory(context.Background(), model.StoryDraft{Title: "T", Body: "B", Anonymous: true})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}
	if !created.IsAnonymous() {
		t.Errorf("display = %q/%q, want anonymous", created.AuthorDisplayName, created.AuthorDisplayRole)
	}
	if created.AuthorID != authorSession.UserID {
		t.Errorf("AuthorID = %q, want real author kept", created.AuthorID)
	}
	if mine := s.List(feed.ListOptions{Mode: feed.ModeMine}); len(mine) != 1 {
		t.Errorf("ModeMine = %v, want anonymous story listed for its author", ids(mine))
	}
}

func TestStoryStore_CreateStory_Validation(t *testing.T) {
	tests := []struct {
		name    string
		session feed.Session
		draft   model.StoryDraft
		want    string
	}{
		{name: "signed out", session: feed.Session{Online: true}, draft: model.StoryDraft{Title: "T", Body: "B"}, want: feed.CodeInvalidTransition},
		{name: "blank title", session: authorSession, draft: model.StoryDraft{Title: "   ", Body: "B"}, want: feed.CodeInvalidInput},
		{name: "blank body", session: authorSession, draft: model.StoryDraft{Title: "T"}, want: feed.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			s := f.open(t, tt.session)
			_, err := s.CreateStory(context.Background(), tt.draft)
			if code := feed.ErrorCode(err); code != tt.want {
				t.Errorf("CreateStory() error = %v, want %s", err, tt.want)
			}
			if n := f.flaky.Calls("InsertStory"); n != 0 {
				t.Errorf("InsertStory called %d times, want 0", n)
			}
		})
	}
}

func TestStoryStore_ModeratorPendingExposure(t *testing.T) {
	f := newFixture(
		seed("pending", "author-1", model.StatusPending, time.Hour, model.AudienceParents),
		seed("approved", "author-1", model.StatusApproved, 2*time.Hour),
	)

	mod := f.open(t, moderatorSession)
	if diff := cmp.Diff([]string{"pending", "approved"}, ids(mod.List(feed.ListOptions{Mode: feed.ModeModeration}))); diff != "" {
		t.Errorf("moderator moderation list mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"approved"}, ids(mod.List(feed.ListOptions{Mode: feed.ModeFeed}))); diff != "" {
		t.Errorf("moderator feed mismatch (-want +got):\n%s", diff)
	}

	viewer := f.open(t, parentSession)
	if diff := cmp.Diff([]string{"approved"}, ids(viewer.List(feed.ListOptions{Mode: feed.ModeModeration}))); diff != "" {
		t.Errorf("viewer moderation list mismatch (-want +got):\n%s", diff)
	}

	author := f.open(t, authorSession)
	if diff := cmp.Diff([]string{"pending", "approved"}, ids(author.List(feed.ListOptions{Mode: feed.ModeFeed}))); diff != "" {
		t.Errorf("author feed mismatch (-want +got):\n%s", diff)
	}
}

func TestStoryStore_ModerationFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(seed("s1", "author-1", model.StatusPending, time.Hour, model.AudienceParents))
	mod := f.open(t, moderatorSession)

	if err := mod.ApproveStory(ctx, "s1"); err != nil {
		t.Fatalf("ApproveStory() error = %v", err)
	}
	if got := mustStory(t, mod, "s1").Status; got != model.StatusApproved {
		t.Errorf("Status = %q, want approved", got)
	}

	viewer := f.open(t, parentSession)
	if diff := cmp.Diff([]string{"s1"}, ids(viewer.List(feed.ListOptions{Mode: feed.ModeFeed}))); diff != "" {
		t.Errorf("approved story not in parent feed (-want +got):\n%s", diff)
	}

	if err := viewer.ReportStory(ctx, "s1", "privacy", "names a student"); err != nil {
		t.Fatalf("ReportStory() error = %v", err)
	}
	if got := mustStory(t, viewer, "s1").ReportCount; got != 1 {
		t.Errorf("ReportCount = %d, want 1", got)
	}
	if reports := f.remote.Reports("s1"); len(reports) != 1 || reports[0].Details != "names a student" {
		t.Errorf("remote reports = %+v", reports)
	}

	if err := mod.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if q := mod.ReportQueue(); len(q) != 1 || q[0].ID != "s1" {
		t.Fatalf("ReportQueue() = %v, want s1", ids(q))
	}
	if err := mod.RevokeStory(ctx, "s1"); err != nil {
		t.Fatalf("RevokeStory() error = %v", err)
	}
	if got := mustStory(t, mod, "s1").Status; got != model.StatusPending {
		t.Errorf("Status after revoke = %q, want pending", got)
	}

	if err := viewer.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := viewer.List(feed.ListOptions{Mode: feed.ModeFeed}); len(got) != 0 {
		t.Errorf("revoked story still in feed: %v", ids(got))
	}
}

func TestStoryStore_DismissReports(t *testing.T) {
	ctx := context.Background()
	st := seed("s1", "author-1", model.StatusApproved, time.Hour)
	st.ReportCount = 2
	f := newFixture(st)
	mod := f.open(t, moderatorSession)

	if err := mod.DismissReports(ctx, "s1"); err != nil {
		t.Fatalf("DismissReports() error = %v", err)
	}
	got := mustStory(t, mod, "s1")
	if got.ReportCount != 0 || got.Status != model.StatusApproved {
		t.Errorf("after dismiss: reports=%d status=%q, want 0/approved", got.ReportCount, got.Status)
	}
	if q := mod.ReportQueue(); len(q) != 0 {
		t.Errorf("ReportQueue() = %v, want empty", ids(q))
	}
}

func TestStoryStore_ReportQueue(t *testing.T) {
	few := seed("few", "a", model.StatusApproved, time.Hour)
	few.ReportCount = 1
	many := seed("many", "a", model.StatusApproved, 2*time.Hour)
	many.ReportCount = 4
	pending := seed("pending", "a", model.StatusPending, 3*time.Hour)
	pending.ReportCount = 9
	f := newFixture(few, many, pending, seed("clean", "a", model.StatusApproved, 4*time.Hour))

	mod := f.open(t, moderatorSession)
	if diff := cmp.Diff([]string{"many", "few"}, ids(mod.ReportQueue())); diff != "" {
		t.Errorf("ReportQueue() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := mod.Open("many"); !ok {
		t.Error("moderator Open(many) = false for a queued story")
	}

	viewer := f.open(t, parentSession)
	if q := viewer.ReportQueue(); len(q) != 0 {
		t.Errorf("non-moderator ReportQueue() = %v, want empty", ids(q))
	}
}

func TestStoryStore_InvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		seed("pending", "author-1", model.StatusPending, time.Hour),
		seed("approved", "author-1", model.StatusApproved, 2*time.Hour),
		seed("rejected", "author-1", model.StatusRejected, 3*time.Hour),
	)
	viewer := f.open(t, parentSession)
	mod := f.open(t, moderatorSession)

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{name: "viewer approves", run: func() error { return viewer.ApproveStory(ctx, "pending") }, want: feed.CodeInvalidTransition},
		{name: "approve approved", run: func() error { return mod.ApproveStory(ctx, "approved") }, want: feed.CodeInvalidTransition},
		{name: "reject without norms", run: func() error { return mod.RejectStory(ctx, "pending", nil) }, want: feed.CodeInvalidInput},
		{name: "revoke unreported", run: func() error { return mod.RevokeStory(ctx, "approved") }, want: feed.CodeInvalidTransition},
		{name: "report pending", run: func() error { return mod.ReportStory(ctx, "pending", "spam", "") }, want: feed.CodeInvalidTransition},
		{name: "viewer reports hidden pending", run: func() error { return viewer.ReportStory(ctx, "pending", "spam", "") }, want: feed.CodeStoryNotFound},
		{name: "report without reason", run: func() error { return viewer.ReportStory(ctx, "approved", " ", "") }, want: feed.CodeInvalidInput},
		{name: "viewer deletes", run: func() error { return viewer.DeleteStory(ctx, "approved") }, want: feed.CodeInvalidTransition},
		{name: "delete rejected", run: func() error { return mod.DeleteStory(ctx, "rejected") }, want: feed.CodeInvalidTransition},
		{name: "viewer edits", run: func() error { _, err := viewer.EditStory(ctx, "pending", "T", "B"); return err }, want: feed.CodeInvalidTransition},
		{name: "edit approved", run: func() error { _, err := mod.EditStory(ctx, "approved", "T", "B"); return err }, want: feed.CodeInvalidTransition},
		{name: "missing story", run: func() error { return mod.ApproveStory(ctx, "nope") }, want: feed.CodeStoryNotFound},
		{name: "like missing story", run: func() error { return viewer.Like(ctx, "nope") }, want: feed.CodeStoryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			if code := feed.ErrorCode(err); code != tt.want {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}

	for _, op := range []string{"UpdateStoryStatus", "UpdateStoryContent", "DeleteStory", "InsertReport", "InsertLike"} {
		if n := f.flaky.Calls(op); n != 0 {
			t.Errorf("%s called %d times for rejected commands, want 0", op, n)
		}
	}
}

func TestStoryStore_ResubmissionCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	author := f.open(t, authorSession)
	mod := f.open(t, moderatorSession)

	created, err := author.CreateStory(ctx, model.StoryDraft{Title: "Recess", Body: "Jamie at Lincoln Elementary..."})
	if err != nil {
		t.Fatalf("CreateStory() error = %v", err)
	}

	if err := mod.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	norms := []model.Norm{model.NormPrivacy, model.NormPrivacy}
	if err := mod.RejectStory(ctx, created.ID, norms); err != nil {
		t.Fatalf("RejectStory() error = %v", err)
	}

	if err := author.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	rejected := mustStory(t, author, created.ID)
	if rejected.Status != model.StatusRejected {
		t.Fatalf("Status = %q, want rejected", rejected.Status)
	}
	if diff := cmp.Diff([]model.Norm{model.NormPrivacy}, rejected.RejectedNorms); diff != "" {
		t.Errorf("RejectedNorms mismatch (-want +got):\n%s", diff)
	}

	resubmitted, err := author.EditStory(ctx, created.ID, "Recess", "My child at school...")
	if err != nil {
		t.Fatalf("EditStory() error = %v", err)
	}
	if resubmitted.Status != model.StatusPending || resubmitted.AttemptCount != 2 || len(resubmitted.RejectedNorms) != 0 {
		t.Errorf("after resubmit: status=%q attempts=%d norms=%v, want pending/2/none",
			resubmitted.Status, resubmitted.AttemptCount, resubmitted.RejectedNorms)
	}

	if err := mod.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	remoteCopy := mustStory(t, mod, created.ID)
	if remoteCopy.Status != model.StatusPending || remoteCopy.AttemptCount != 2 || remoteCopy.Body != "My child at school..." {
		t.Errorf("remote after resubmit = %+v", remoteCopy)
	}

	if _, err := author.ResubmitStory(ctx, created.ID, "Recess", "again"); feed.ErrorCode(err) != feed.CodeInvalidTransition {
		t.Errorf("ResubmitStory() on pending error = %v, want %s", err, feed.CodeInvalidTransition)
	}
}

func TestStoryStore_DeleteStory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(seed("s1", "author-1", model.StatusApproved, time.Hour))
	s := f.open(t, authorSession)

	if err := s.Like(ctx, "s1"); err != nil {
		t.Fatalf("Like() error = %v", err)
	}
	if err := s.Bookmark(ctx, "s1"); err != nil {
		t.Fatalf("Bookmark() error = %v", err)
	}
	if err := s.DeleteStory(ctx, "s1"); err != nil {
		t.Fatalf("DeleteStory() error = %v", err)
	}

	if _, ok := s.Story("s1"); ok {
		t.Error("story still present after delete")
	}
	if s.IsLiked("s1") || s.IsBookmarked("s1") {
		t.Error("membership kept for deleted story")
	}
	stories, _ := f.remote.ListStories(ctx)
	if len(stories) != 0 {
		t.Errorf("remote still has %d stories", len(stories))
	}
}

func TestStoryStore_SerializedCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(seed("s1", "author-1", model.StatusApproved, time.Hour))

	const n = 20
	shared := f.open(t, parentSession)

	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			done <- shared.ToggleBookmark(ctx, "s1")
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Errorf("ToggleBookmark() error = %v", err)
		}
	}

	// An even number of toggles ends where it started.
	if shared.IsBookmarked("s1") {
		t.Error("IsBookmarked = true after an even number of toggles")
	}
	remoteIDs, _ := f.remote.ListBookmarks(ctx, parentSession.UserID)
	if len(remoteIDs) != 0 {
		t.Errorf("remote bookmarks = %v, want none", remoteIDs)
	}
}

func TestStoryStore_RevokedStoryKeepsReports(t *testing.T) {
	ctx := context.Background()
	st := seed("s1", "author-1", model.StatusApproved, time.Hour)
	st.ReportCount = 2
	f := newFixture(st)
	mod := f.open(t, moderatorSession)

	if err := mod.RevokeStory(ctx, "s1"); err != nil {
		t.Fatalf("RevokeStory() error = %v", err)
	}
	if got := mustStory(t, mod, "s1").ReportCount; got != 2 {
		t.Errorf("ReportCount after revoke = %d, want 2", got)
	}
	if q := mod.ReportQueue(); len(q) != 0 {
		t.Errorf("ReportQueue() with story pending = %v, want empty", ids(q))
	}

	if err := mod.ApproveStory(ctx, "s1"); err != nil {
		t.Fatalf("ApproveStory() error = %v", err)
	}
	if diff := cmp.Diff([]string{"s1"}, ids(mod.ReportQueue())); diff != "" {
		t.Errorf("re-approved story not back in ReportQueue (-want +got):\n%s", diff)
	}

	if err := mod.DismissReports(ctx, "s1"); err != nil {
		t.Fatalf("DismissReports() error = %v", err)
	}
	if q := mod.ReportQueue(); len(q) != 0 {
		t.Errorf("ReportQueue() after dismiss = %v, want empty", ids(q))
	}
}

func TestStoryStore_SetOnlineDuringCommands(t *testing.T) {
	ctx := context.Background()
	f := newFixture(seed("s1", "author-2", model.StatusApproved, time.Hour))
	s := f.open(t, authorSession)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			s.SetOnline(i%2 == 1)
		}
		s.SetOnline(true)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			// Offline attempts roll back and return SYNC_FAILED.
			if _, err := s.CreateStory(ctx, model.StoryDraft{Title: "T", Body: "B"}); err != nil && feed.ErrorCode(err) != feed.CodeSyncFailed {
				t.Errorf("CreateStory() error = %v", err)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := s.ToggleLike(ctx, "s1"); err != nil {
				t.Errorf("ToggleLike() error = %v", err)
			}
		}
	}()
	wg.Wait()

	if !s.Session().Online {
		t.Error("Session().Online = false after final SetOnline(true)")
	}
	for _, st := range s.List(feed.ListOptions{Mode: feed.ModeMine}) {
		if st.AuthorID != authorSession.UserID || st.AuthorDisplayName != authorSession.DisplayName {
			t.Errorf("created story author = %q/%q", st.AuthorID, st.AuthorDisplayName)
		}
	}
}

// stripTags is a minimal sanitizer used to check the store applies one.
type stripTags struct{}

func (stripTags) Sanitize(text string) string {
	var out []rune
	in := false
	for _, r := range text {
		switch {
		case r == '<':
			in = true
		case r == '>':
			in = false
		case !in:
			out = append(out, r)
		}
	}
	return string(out)
}
