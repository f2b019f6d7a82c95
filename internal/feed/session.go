package feed

// Session identifies the signed-in viewer. It is passed to the store
// explicitly rather than read from ambient state.
type Session struct {
	UserID      string
	Role        string // raw role, e.g. "student-k8"
	DisplayName string
	Moderator   bool
	Online      bool
}

// Viewer returns the visibility-filter view of the session.
func (s Session) Viewer() Viewer {
	return Viewer{ID: s.UserID, Role: s.Role, Moderator: s.Moderator}
}
