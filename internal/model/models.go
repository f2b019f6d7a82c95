package model

import (
	"slices"
	"time"
)

// Status is the moderation state of a story.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Norm identifies a community norm a moderator can cite when rejecting a story.
type Norm string

const (
	NormPrivacy       Norm = "privacy"
	NormRespect       Norm = "respect"
	NormMedicalAdvice Norm = "medical-advice"
	NormSafety        Norm = "safety"
	NormOnTopic       Norm = "on-topic"
	NormNoPromotion   Norm = "no-promotion"
)

// KnownNorms returns the fixed set of norms, in display order.
func KnownNorms() []Norm {
	return []Norm{NormPrivacy, NormRespect, NormMedicalAdvice, NormSafety, NormOnTopic, NormNoPromotion}
}

// Valid reports whether n is in the fixed norm set.
func (n Norm) Valid() bool {
	return slices.Contains(KnownNorms(), n)
}

// Audience groups a story can target.
const (
	AudienceStudents = "Students"
	AudienceParents  = "Parents"
	AudienceStaff    = "School Staff"
)

// Raw viewer roles as stored on user profiles.
const (
	RoleStudentK8 = "student-k8"
	RoleStudentHS = "student-hs"
	RoleParent    = "parent"
	RoleStaff     = "staff"
)

// AnonymousName replaces the author's display name on anonymous posts.
const AnonymousName = "Anonymous"

// Story is a user-submitted narrative subject to moderation.
type Story struct {
	ID                string    `json:"id"`
	AuthorID          string    `json:"author_id"`
	Title             string    `json:"title"`
	Body              string    `json:"body"`
	AuthorDisplayName string    `json:"author_display_name"`
	AuthorDisplayRole string    `json:"author_display_role,omitempty"` // empty for anonymous posts
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	Status            Status    `json:"status"`
	RejectedNorms     []Norm    `json:"rejected_norms,omitempty"`
	ReportCount       int       `json:"report_count"`
	AttemptCount      int       `json:"attempt_count"`
	LikeCount         int       `json:"like_count"`
	CommentCount      int       `json:"comment_count"`
	TargetAudiences   []string  `json:"target_audiences,omitempty"` // empty means everyone
	TaggedTopics      []string  `json:"tagged_topics,omitempty"`
}

// Clone returns a deep copy of the story.
func (s *Story) Clone() *Story {
	if s == nil {
		return nil
	}
	c := *s
	c.RejectedNorms = slices.Clone(s.RejectedNorms)
	c.TargetAudiences = slices.Clone(s.TargetAudiences)
	c.TaggedTopics = slices.Clone(s.TaggedTopics)
	return &c
}

// IsAnonymous reports whether the story was posted anonymously.
func (s *Story) IsAnonymous() bool {
	return s.AuthorDisplayName == AnonymousName && s.AuthorDisplayRole == ""
}

// StoryDraft is what an author submits to create a story.
type StoryDraft struct {
	Title           string
	Body            string
	Anonymous       bool
	TargetAudiences []string
	TaggedTopics    []string
}

// Comment is attached to exactly one story.
type Comment struct {
	ID                string    `json:"id"`
	StoryID           string    `json:"story_id"`
	AuthorID          string    `json:"author_id"`
	Body              string    `json:"body"`
	AuthorDisplayName string    `json:"author_display_name"`
	AuthorDisplayRole string    `json:"author_display_role,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Clone returns a copy of the comment.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Report records a viewer flagging a story. A user reports a story at most once.
type Report struct {
	ID        string
	StoryID   string
	UserID    string
	Reason    string
	Details   string // optional
	CreatedAt time.Time
}

// ModerationResult is the verdict of an automated content check.
type ModerationResult struct {
	Safe   bool
	Reason string // set when Safe is false
}
