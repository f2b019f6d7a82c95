package feed

import (
	"context"
	"slices"

	"storyfeed/internal/model"
)

// CreateStory submits a new story for moderation. The story appears locally
// under a temporary ID and is replaced by the remote's record once the
// insert succeeds.
func (s *StoryStore) CreateStory(ctx context.Context, draft model.StoryDraft) (*model.Story, error) {
	draft.Title = s.clean(draft.Title)
	draft.Body = s.clean(draft.Body)

	tempID := tempIDPrefix + s.idgen.New()
	story, err := NewSubmission(s.Session(), draft, tempID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if s.screenStories {
		if err := s.screen(ctx, draft.Title+"\n\n"+draft.Body); err != nil {
			return nil, err
		}
	}

	var created *model.Story
	err = s.execute(ctx, &command{
		op:      "create story",
		primary: true,
		apply: func(st *state) error {
			st.stories = append([]*model.Story{story.Clone()}, st.stories...)
			return nil
		},
		commit: func(ctx context.Context) error {
			var err error
			created, err = s.remote.InsertStory(ctx, story.Clone())
			return err
		},
		reconcile: func(st *state) {
			if i := st.index(tempID); i >= 0 {
				st.stories[i] = created.Clone()
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, newSyncFailedError("create story")
	}
	s.logger.Info("story submitted", "story_id", created.ID, "anonymous", created.IsAnonymous())
	return created.Clone(), nil
}

// EditStory replaces a story's title and body. Editing a rejected story
// resubmits it for moderation.
func (s *StoryStore) EditStory(ctx context.Context, id, title, body string) (*model.Story, error) {
	return s.updateContent(ctx, id, title, body, "")
}

// ResubmitStory edits a rejected story and returns it to the moderation queue.
func (s *StoryStore) ResubmitStory(ctx context.Context, id, title, body string) (*model.Story, error) {
	return s.updateContent(ctx, id, title, body, EventResubmit)
}

func (s *StoryStore) updateContent(ctx context.Context, id, title, body string, ev Event) (*model.Story, error) {
	title, body = s.clean(title), s.clean(body)
	if err := validateContent(title, body); err != nil {
		return nil, err
	}
	if s.screenStories {
		if err := s.screen(ctx, title+"\n\n"+body); err != nil {
			return nil, err
		}
	}

	op := "edit story"
	if ev == EventResubmit {
		op = "resubmit story"
	}

	var updated *model.Story
	err := s.execute(ctx, &command{
		op:      op,
		primary: true,
		apply: func(st *state) error {
			story := st.find(id)
			if story == nil {
				return newStoryNotFoundError(id)
			}
			event := ev
			if event == "" {
				event = EventEdit
				if story.Status == model.StatusRejected {
					event = EventResubmit
				}
			}
			in := TransitionInput{Title: title, Body: body, Now: s.clock.Now()}
			return ApplyTransition(story, event, ActorFor(s.session, story), in)
		},
		commit: func(ctx context.Context) error {
			var err error
			updated, err = s.remote.UpdateStoryContent(ctx, id, title, body)
			return err
		},
		reconcile: func(st *state) {
			i := st.index(id)
			if i < 0 || updated == nil {
				return
			}
			// Aggregates stay as computed locally until the next refresh.
			updated = updated.Clone()
			updated.LikeCount = st.stories[i].LikeCount
			updated.CommentCount = st.stories[i].CommentCount
			st.stories[i] = updated
		},
	})
	if err != nil {
		return nil, err
	}
	story, ok := s.Story(id)
	if !ok {
		return nil, newStoryNotFoundError(id)
	}
	return story, nil
}

// DeleteStory removes a story along with the session's like, bookmark and
// loaded comments for it.
func (s *StoryStore) DeleteStory(ctx context.Context, id string) error {
	return s.execute(ctx, &command{
		op:      "delete story",
		primary: true,
		apply: func(st *state) error {
			story := st.find(id)
			if story == nil {
				return newStoryNotFoundError(id)
			}
			if err := CheckTransition(story, EventDelete, ActorFor(s.session, story)); err != nil {
				return err
			}
			st.remove(id)
			delete(st.likes, id)
			delete(st.bookmarks, id)
			delete(st.comments, id)
			return nil
		},
		commit: func(ctx context.Context) error {
			return s.remote.DeleteStory(ctx, id)
		},
	})
}

// ApproveStory publishes a pending story.
func (s *StoryStore) ApproveStory(ctx context.Context, id string) error {
	return s.moderate(ctx, id, EventApprove, nil)
}

// RejectStory rejects a pending story citing at least one norm.
func (s *StoryStore) RejectStory(ctx context.Context, id string, norms []model.Norm) error {
	return s.moderate(ctx, id, EventReject, norms)
}

// RevokeStory returns a reported, approved story to the moderation queue.
// Its reports are kept, so if it is approved again it goes straight back
// into ReportQueue until DismissReports clears them.
func (s *StoryStore) RevokeStory(ctx context.Context, id string) error {
	return s.moderate(ctx, id, EventRevoke, nil)
}

func (s *StoryStore) moderate(ctx context.Context, id string, ev Event, norms []model.Norm) error {
	var (
		status model.Status
		stored []model.Norm
	)
	err := s.execute(ctx, &command{
		op:      string(ev) + " story",
		primary: true,
		apply: func(st *state) error {
			story := st.find(id)
			if story == nil {
				return newStoryNotFoundError(id)
			}
			in := TransitionInput{Norms: norms, Now: s.clock.Now()}
			if err := ApplyTransition(story, ev, ActorFor(s.session, story), in); err != nil {
				return err
			}
			status, stored = story.Status, slices.Clone(story.RejectedNorms)
			return nil
		},
		commit: func(ctx context.Context) error {
			return s.remote.UpdateStoryStatus(ctx, id, status, stored)
		},
	})
	if err == nil {
		s.logger.Info("story moderated", "story_id", id, "event", string(ev), "status", string(status))
	}
	return err
}

// DismissReports clears the open reports on an approved story and leaves
// it published.
func (s *StoryStore) DismissReports(ctx context.Context, id string) error {
	return s.execute(ctx, &command{
		op:      "dismiss reports",
		primary: true,
		apply: func(st *state) error {
			story := st.find(id)
			if story == nil {
				return newStoryNotFoundError(id)
			}
			return ApplyTransition(story, EventDismissReports, ActorFor(s.session, story), TransitionInput{Now: s.clock.Now()})
		},
		commit: func(ctx context.Context) error {
			return s.remote.ClearReports(ctx, id)
		},
	})
}
