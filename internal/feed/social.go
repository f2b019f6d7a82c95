package feed

import (
	"context"
	"slices"

	"storyfeed/internal/model"
)

// ReportStory flags an approved story for moderator review. The report is
// a background write: a remote failure rolls back the count without
// surfacing an error, and a repeat report by the same user is a no-op.
// Like the other social writes it reports STORY_NOT_FOUND for stories the
// session cannot open.
func (s *StoryStore) ReportStory(ctx context.Context, id, reason, details string) error {
	session, err := s.requireUser("report a story")
	if err != nil {
		return err
	}
	reason, details = s.clean(reason), s.clean(details)
	if reason == "" {
		return newInvalidInputError("choose a reason for the report")
	}

	report := &model.Report{
		StoryID:   id,
		UserID:    session.UserID,
		Reason:    reason,
		Details:   details,
		CreatedAt: s.clock.Now(),
	}
	return s.execute(ctx, &command{
		op: "report story",
		apply: func(st *state) error {
			story := st.find(id)
			if !s.canOpen(story) {
				return newStoryNotFoundError(id)
			}
			return ApplyTransition(story, EventReport, ActorFor(s.session, story), TransitionInput{})
		},
		commit: func(ctx context.Context) error {
			return s.remote.InsertReport(ctx, report)
		},
	})
}

// Like marks the story as liked by the session's user.
func (s *StoryStore) Like(ctx context.Context, id string) error {
	want := true
	return s.setLike(ctx, id, &want)
}

// Unlike removes the session user's like.
func (s *StoryStore) Unlike(ctx context.Context, id string) error {
	want := false
	return s.setLike(ctx, id, &want)
}

// ToggleLike flips the session user's like.
func (s *StoryStore) ToggleLike(ctx context.Context, id string) error {
	return s.setLike(ctx, id, nil)
}

// setLike sets like membership to *want, or flips it when want is nil.
func (s *StoryStore) setLike(ctx context.Context, id string, want *bool) error {
	if _, err := s.requireUser("like a story"); err != nil {
		return err
	}

	var liking bool
	return s.execute(ctx, &command{
		op: "like story",
		apply: func(st *state) error {
			story := st.find(id)
			if !s.canOpen(story) {
				return newStoryNotFoundError(id)
			}
			liking = !st.likes[id]
			if want != nil {
				if *want == st.likes[id] {
					return errNoChange
				}
				liking = *want
			}
			if liking {
				st.likes[id] = true
				story.LikeCount++
			} else {
				delete(st.likes, id)
				story.LikeCount = max(story.LikeCount-1, 0)
			}
			return nil
		},
		commit: func(ctx context.Context) error {
			if liking {
				return s.remote.InsertLike(ctx, id, s.session.UserID)
			}
			return s.remote.DeleteLike(ctx, id, s.session.UserID)
		},
		onDuplicate: func(st *state) {
			// Already liked remotely; the listed count includes it.
			st.likes[id] = true
		},
	})
}

// Bookmark saves the story to the session user's reading list.
func (s *StoryStore) Bookmark(ctx context.Context, id string) error {
	want := true
	return s.setBookmark(ctx, id, &want)
}

// Unbookmark removes the story from the reading list.
func (s *StoryStore) Unbookmark(ctx context.Context, id string) error {
	want := false
	return s.setBookmark(ctx, id, &want)
}

// ToggleBookmark flips the story's reading list membership.
func (s *StoryStore) ToggleBookmark(ctx context.Context, id string) error {
	return s.setBookmark(ctx, id, nil)
}

func (s *StoryStore) setBookmark(ctx context.Context, id string, want *bool) error {
	if _, err := s.requireUser("bookmark a story"); err != nil {
		return err
	}

	var saving bool
	return s.execute(ctx, &command{
		op: "bookmark story",
		apply: func(st *state) error {
			if !s.canOpen(st.find(id)) {
				return newStoryNotFoundError(id)
			}
			saving = !st.bookmarks[id]
			if want != nil {
				if *want == st.bookmarks[id] {
					return errNoChange
				}
				saving = *want
			}
			if saving {
				st.bookmarks[id] = true
			} else {
				delete(st.bookmarks, id)
			}
			return nil
		},
		commit: func(ctx context.Context) error {
			if saving {
				return s.remote.InsertBookmark(ctx, id, s.session.UserID)
			}
			return s.remote.DeleteBookmark(ctx, id, s.session.UserID)
		},
		onDuplicate: func(st *state) {
			st.bookmarks[id] = true
		},
	})
}

// LoadComments fetches a story's comments from the remote and resets the
// story's comment count to the number loaded. When the remote cannot be
// reached the previously loaded comments are returned.
func (s *StoryStore) LoadComments(ctx context.Context, storyID string) ([]*model.Comment, error) {
	if _, ok := s.Open(storyID); !ok {
		return nil, newStoryNotFoundError(storyID)
	}

	s.opMu.Lock()
	var (
		list []*model.Comment
		err  = errOffline
	)
	if s.session.Online {
		list, err = s.remote.ListComments(ctx, storyID)
	}
	if err != nil {
		s.opMu.Unlock()
		s.logger.Warn("loading comments failed", "story_id", storyID, "error", err)
		s.mu.RLock()
		_, loaded := s.state.comments[storyID]
		s.mu.RUnlock()
		if loaded {
			return s.Comments(storyID), nil
		}
		return nil, newSyncFailedError("load comments")
	}

	s.mu.Lock()
	cp := make([]*model.Comment, len(list))
	for i, c := range list {
		cp[i] = c.Clone()
	}
	s.state.comments[storyID] = cp
	if story := s.state.find(storyID); story != nil {
		story.CommentCount = len(cp)
	}
	s.mu.Unlock()
	s.persist(ctx)
	s.opMu.Unlock()

	return s.Comments(storyID), nil
}

// AddComment posts a comment on a story after screening it. An unsafe
// verdict rejects the comment; an unavailable moderator does not.
func (s *StoryStore) AddComment(ctx context.Context, storyID, body string, anonymous bool) (*model.Comment, error) {
	session, err := s.requireUser("comment")
	if err != nil {
		return nil, err
	}
	body = s.clean(body)
	if body == "" {
		return nil, newInvalidInputError("a comment cannot be empty")
	}
	if _, ok := s.Open(storyID); !ok {
		return nil, newStoryNotFoundError(storyID)
	}
	if err := s.screen(ctx, body); err != nil {
		return nil, err
	}

	name, role := session.DisplayName, session.Role
	if anonymous {
		name, role = model.AnonymousName, ""
	}
	tempID := tempIDPrefix + s.idgen.New()
	comment := &model.Comment{
		ID:                tempID,
		StoryID:           storyID,
		AuthorID:          session.UserID,
		Body:              body,
		AuthorDisplayName: name,
		AuthorDisplayRole: role,
		CreatedAt:         s.clock.Now(),
	}

	var created *model.Comment
	err = s.execute(ctx, &command{
		op:      "add comment",
		primary: true,
		apply: func(st *state) error {
			story := st.find(storyID)
			if !s.canOpen(story) {
				return newStoryNotFoundError(storyID)
			}
			st.comments[storyID] = append(st.comments[storyID], comment.Clone())
			story.CommentCount++
			return nil
		},
		commit: func(ctx context.Context) error {
			var err error
			created, err = s.remote.InsertComment(ctx, comment.Clone())
			return err
		},
		reconcile: func(st *state) {
			list := st.comments[storyID]
			if i := commentIndex(list, tempID); i >= 0 && created != nil {
				list[i] = created.Clone()
			}
		},
	})
	if err != nil {
		return nil, err
	}
	if created == nil {
		return nil, newSyncFailedError("add comment")
	}
	return created.Clone(), nil
}

// DeleteComment removes a comment. Only its author or a moderator may.
func (s *StoryStore) DeleteComment(ctx context.Context, storyID, commentID string) error {
	return s.execute(ctx, &command{
		op:      "delete comment",
		primary: true,
		apply: func(st *state) error {
			story := st.find(storyID)
			if story == nil {
				return newStoryNotFoundError(storyID)
			}
			list := st.comments[storyID]
			i := commentIndex(list, commentID)
			if i < 0 {
				return newCommentNotFoundError(commentID)
			}
			if s.session.UserID == "" || (list[i].AuthorID != s.session.UserID && !s.session.Moderator) {
				return newInvalidTransitionError(EventDelete, "not permitted for this user")
			}
			st.comments[storyID] = slices.Delete(list, i, i+1)
			story.CommentCount = max(story.CommentCount-1, 0)
			return nil
		},
		commit: func(ctx context.Context) error {
			return s.remote.DeleteComment(ctx, commentID)
		},
	})
}

func commentIndex(list []*model.Comment, id string) int {
	return slices.IndexFunc(list, func(c *model.Comment) bool { return c.ID == id })
}
