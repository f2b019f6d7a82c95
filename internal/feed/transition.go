package feed

import (
	"fmt"
	"slices"
	"time"

	"storyfeed/internal/model"
)

// Event is a moderation lifecycle event.
type Event string

const (
	EventSubmit         Event = "submit"
	EventApprove        Event = "approve"
	EventReject         Event = "reject"
	EventResubmit       Event = "resubmit"
	EventEdit           Event = "edit"
	EventReport         Event = "report"
	EventRevoke         Event = "revoke"
	EventDismissReports Event = "dismiss reports"
	EventDelete         Event = "delete"
)

// Actor is a bitmask of the capabilities a session holds over a story.
type Actor uint8

const (
	ActorViewer Actor = 1 << iota
	ActorAuthor
	ActorModerator
)

// ActorFor returns the capabilities session has over story.
// A signed-out session has none.
func ActorFor(session Session, story *model.Story) Actor {
	if session.UserID == "" {
		return 0
	}
	a := ActorViewer
	if story != nil && story.AuthorID == session.UserID {
		a |= ActorAuthor
	}
	if session.Moderator {
		a |= ActorModerator
	}
	return a
}

type transition struct {
	from    []model.Status
	to      model.Status // empty for events that keep the status or remove the story
	allowed Actor
	guard   func(story *model.Story) string
}

func requireReports(story *model.Story) string {
	if story.ReportCount <= 0 {
		return "story has no open reports"
	}
	return ""
}

var transitions = map[Event]transition{
	EventApprove:        {from: []model.Status{model.StatusPending}, to: model.StatusApproved, allowed: ActorModerator},
	EventReject:         {from: []model.Status{model.StatusPending}, to: model.StatusRejected, allowed: ActorModerator},
	EventResubmit:       {from: []model.Status{model.StatusRejected}, to: model.StatusPending, allowed: ActorAuthor},
	EventEdit:           {from: []model.Status{model.StatusPending}, to: model.StatusPending, allowed: ActorAuthor},
	EventReport:         {from: []model.Status{model.StatusApproved}, allowed: ActorViewer},
	EventRevoke:         {from: []model.Status{model.StatusApproved}, to: model.StatusPending, allowed: ActorModerator, guard: requireReports},
	EventDismissReports: {from: []model.Status{model.StatusApproved}, allowed: ActorModerator, guard: requireReports},
	EventDelete:         {from: []model.Status{model.StatusPending, model.StatusApproved}, allowed: ActorAuthor | ActorModerator},
}

// CheckTransition reports whether actor may apply ev to story.
// EventSubmit is handled by NewSubmission and is not accepted here.
func CheckTransition(story *model.Story, ev Event, actor Actor) error {
	t, ok := transitions[ev]
	if !ok {
		return newInvalidTransitionError(ev, "unknown event")
	}
	if actor&t.allowed == 0 {
		return newInvalidTransitionError(ev, "not permitted for this user")
	}
	if !slices.Contains(t.from, story.Status) {
		return newInvalidTransitionError(ev, fmt.Sprintf("story is %s", story.Status))
	}
	if t.guard != nil {
		if reason := t.guard(story); reason != "" {
			return newInvalidTransitionError(ev, reason)
		}
	}
	return nil
}

// TransitionInput carries the event arguments that have side effects.
type TransitionInput struct {
	Norms []model.Norm // reject
	Title string       // resubmit, edit
	Body  string       // resubmit, edit
	Now   time.Time
}

// ApplyTransition checks ev and applies its side effects to story in place.
// It is the only code path that changes a story's status after submission.
// EventDelete is only checked; removal is up to the caller.
func ApplyTransition(story *model.Story, ev Event, actor Actor, in TransitionInput) error {
	if err := CheckTransition(story, ev, actor); err != nil {
		return err
	}

	switch ev {
	case EventReject:
		norms, err := ValidateNorms(in.Norms)
		if err != nil {
			return err
		}
		story.RejectedNorms = norms
	case EventResubmit, EventEdit:
		if err := validateContent(in.Title, in.Body); err != nil {
			return err
		}
		story.Title = in.Title
		story.Body = in.Body
		if ev == EventResubmit {
			story.AttemptCount++
			story.RejectedNorms = nil
		}
	case EventReport:
		story.ReportCount++
	case EventDismissReports:
		story.ReportCount = 0
	case EventApprove, EventRevoke:
		story.RejectedNorms = nil
	}

	if to := transitions[ev].to; to != "" {
		story.Status = to
	}
	if !in.Now.IsZero() && ev != EventReport && ev != EventDelete {
		story.UpdatedAt = in.Now
	}
	return nil
}

// NewSubmission builds the pending story an author submits.
// Anonymous drafts get the sentinel display name and no role.
func NewSubmission(session Session, draft model.StoryDraft, id string, now time.Time) (*model.Story, error) {
	if session.UserID == "" {
		return nil, newInvalidTransitionError(EventSubmit, "sign in to share a story")
	}
	if err := validateContent(draft.Title, draft.Body); err != nil {
		return nil, err
	}

	name, role := session.DisplayName, session.Role
	if draft.Anonymous {
		name, role = model.AnonymousName, ""
	}

	return &model.Story{
		ID:                id,
		AuthorID:          session.UserID,
		Title:             draft.Title,
		Body:              draft.Body,
		AuthorDisplayName: name,
		AuthorDisplayRole: role,
		CreatedAt:         now,
		UpdatedAt:         now,
		Status:            model.StatusPending,
		AttemptCount:      1,
		TargetAudiences:   dedupe(draft.TargetAudiences),
		TaggedTopics:      dedupe(draft.TaggedTopics),
	}, nil
}

// ValidateNorms checks a rejection's norms and returns them deduplicated
// in input order. At least one known norm is required.
func ValidateNorms(norms []model.Norm) ([]model.Norm, error) {
	if len(norms) == 0 {
		return nil, newInvalidInputError("select at least one violated norm to reject a story")
	}
	out := make([]model.Norm, 0, len(norms))
	for _, n := range norms {
		if !n.Valid() {
			return nil, newInvalidInputError(fmt.Sprintf("unknown norm: %q", n))
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func validateContent(title, body string) error {
	if title == "" {
		return newInvalidInputError("a story needs a title")
	}
	if body == "" {
		return newInvalidInputError("a story needs a body")
	}
	return nil
}

func dedupe(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
