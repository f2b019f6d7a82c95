package feed

import (
	"context"
	"errors"
	"maps"
	"time"

	"storyfeed/internal/model"
)

var (
	errOffline = errors.New("session is offline")

	// errNoChange aborts a command whose apply found nothing to do.
	errNoChange = errors.New("no change")
)

// state is the store's local view. It is only touched under StoryStore.mu.
type state struct {
	stories   []*model.Story // newest first
	likes     map[string]bool
	bookmarks map[string]bool
	comments  map[string][]*model.Comment // loaded comments by story ID
}

func newState() *state {
	return &state{
		likes:     make(map[string]bool),
		bookmarks: make(map[string]bool),
		comments:  make(map[string][]*model.Comment),
	}
}

// clone returns a deep copy so a snapshot never aliases live records.
func (st *state) clone() *state {
	c := &state{
		stories:   make([]*model.Story, len(st.stories)),
		likes:     maps.Clone(st.likes),
		bookmarks: maps.Clone(st.bookmarks),
		comments:  make(map[string][]*model.Comment, len(st.comments)),
	}
	for i, s := range st.stories {
		c.stories[i] = s.Clone()
	}
	for id, list := range st.comments {
		cp := make([]*model.Comment, len(list))
		for i, cm := range list {
			cp[i] = cm.Clone()
		}
		c.comments[id] = cp
	}
	return c
}

func (st *state) index(id string) int {
	for i, s := range st.stories {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func (st *state) find(id string) *model.Story {
	if i := st.index(id); i >= 0 {
		return st.stories[i]
	}
	return nil
}

func (st *state) remove(id string) {
	if i := st.index(id); i >= 0 {
		st.stories = append(st.stories[:i], st.stories[i+1:]...)
	}
}

// command is one optimistic mutation. The executor snapshots the state
// before apply and restores that snapshot if commit fails.
type command struct {
	op      string
	primary bool // failures are returned to the caller

	// apply mutates local state. An error aborts the command before any
	// remote call.
	apply func(st *state) error

	// commit performs the remote write.
	commit func(ctx context.Context) error

	// reconcile folds the remote result into local state after a
	// successful commit. Optional.
	reconcile func(st *state)

	// onDuplicate runs on the restored snapshot when commit reports
	// ErrDuplicate. Optional; without it the duplicate is a silent no-op.
	onDuplicate func(st *state)
}

// execute runs cmd: snapshot, apply, commit, then reconcile or roll back.
// Commands are serialized, so at most one remote write is in flight.
func (s *StoryStore) execute(ctx context.Context, cmd *command) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	previous := s.state.clone()
	if err := cmd.apply(s.state); err != nil {
		s.state = previous
		s.mu.Unlock()
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	s.mu.Unlock()

	err := s.commit(ctx, cmd)

	switch {
	case err == nil:
		if cmd.reconcile != nil {
			s.mu.Lock()
			cmd.reconcile(s.state)
			s.mu.Unlock()
		}
		s.metrics.RecordMutation(cmd.op)
		s.persist(ctx)
		return nil

	case errors.Is(err, ErrDuplicate):
		s.mu.Lock()
		s.state = previous
		if cmd.onDuplicate != nil {
			cmd.onDuplicate(s.state)
		}
		s.mu.Unlock()
		s.logger.Debug("duplicate write treated as success", "op", cmd.op)
		s.persist(ctx)
		return nil

	default:
		s.mu.Lock()
		s.state = previous
		s.mu.Unlock()
		s.metrics.RecordRollback(cmd.op)
		s.logger.Warn("remote write failed, local change rolled back", "op", cmd.op, "error", err)
		if cmd.primary {
			return newSyncFailedError(cmd.op)
		}
		return nil
	}
}

func (s *StoryStore) commit(ctx context.Context, cmd *command) error {
	if !s.session.Online {
		return errOffline
	}
	start := time.Now()
	err := cmd.commit(ctx)
	s.metrics.RecordRemoteLatency(cmd.op, time.Since(start))
	return err
}
