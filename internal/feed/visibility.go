package feed

import (
	"slices"

	"storyfeed/internal/model"
)

// Viewer is who a listing is being computed for.
type Viewer struct {
	ID        string
	Role      string // raw role
	Moderator bool
}

// ListMode selects which stories a listing contains.
type ListMode string

const (
	// ModeFeed is the general feed: approved stories targeted at the viewer,
	// plus the viewer's own stories.
	ModeFeed ListMode = "feed"
	// ModeModeration adds every pending story for moderators.
	ModeModeration ListMode = "moderation"
	// ModeMine lists all of the viewer's own stories in any status.
	ModeMine ListMode = "mine"
)

// SortMode orders a listing.
type SortMode string

const (
	SortNewest  SortMode = "newest"
	SortPopular SortMode = "popular"
)

var roleGroups = map[string]string{
	model.RoleStudentK8: model.AudienceStudents,
	model.RoleStudentHS: model.AudienceStudents,
	model.RoleParent:    model.AudienceParents,
	model.RoleStaff:     model.AudienceStaff,
}

// NormalizeRole maps a raw role to its audience group.
// Unknown roles are returned unchanged.
func NormalizeRole(role string) string {
	if g, ok := roleGroups[role]; ok {
		return g
	}
	return role
}

// IsVisible reports whether the viewer may see story in the general feed.
// Authors always see their own stories.
func IsVisible(story *model.Story, viewerRole, viewerID string) bool {
	if viewerID != "" && story.AuthorID == viewerID {
		return true
	}
	if story.Status != model.StatusApproved {
		return false
	}
	return audienceMatches(story.TargetAudiences, viewerRole)
}

// audienceMatches accepts either the normalized group or the raw role,
// since both forms appear in stored audiences.
func audienceMatches(audiences []string, role string) bool {
	if len(audiences) == 0 {
		return true
	}
	if role == "" {
		return false
	}
	return slices.Contains(audiences, NormalizeRole(role)) || slices.Contains(audiences, role)
}

// Filter returns the stories viewer may see in mode, preserving input order.
func Filter(stories []*model.Story, viewer Viewer, mode ListMode) []*model.Story {
	out := make([]*model.Story, 0, len(stories))
	for _, s := range stories {
		if visibleIn(s, viewer, mode) {
			out = append(out, s)
		}
	}
	return out
}

func visibleIn(s *model.Story, viewer Viewer, mode ListMode) bool {
	switch mode {
	case ModeMine:
		return viewer.ID != "" && s.AuthorID == viewer.ID
	case ModeModeration:
		if viewer.Moderator && s.Status == model.StatusPending {
			return true
		}
		return IsVisible(s, viewer.Role, viewer.ID)
	default:
		return IsVisible(s, viewer.Role, viewer.ID)
	}
}

// SortStories orders stories in place. Both modes are stable.
func SortStories(stories []*model.Story, mode SortMode) {
	switch mode {
	case SortPopular:
		slices.SortStableFunc(stories, func(a, b *model.Story) int {
			return b.LikeCount - a.LikeCount
		})
	default:
		slices.SortStableFunc(stories, func(a, b *model.Story) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		})
	}
}
