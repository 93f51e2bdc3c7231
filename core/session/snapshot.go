package session

import "github.com/getkayan/mentorship/core/profile"

// Status is the lifecycle state of the session.
type Status string

const (
	StatusUnauthenticated Status = "unauthenticated"
	StatusResolving       Status = "resolving"
	StatusAuthenticated   Status = "authenticated"
)

// Snapshot is a copy of the controller state at one transition.
//
// PrincipalID is set exactly when Status is not StatusUnauthenticated.
// Profile is nil while resolving and when the profile store failed.
type Snapshot struct {
	Status      Status           `json:"status"`
	PrincipalID string           `json:"principal_id,omitempty"`
	Email       string           `json:"email,omitempty"`
	Profile     *profile.Profile `json:"profile,omitempty"`
	Version     uint64           `json:"version"`
}

// Authenticated reports whether the session is fully established.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated
}

// Role returns the profile role, if a profile is loaded.
func (s Snapshot) Role() (profile.Role, bool) {
	if s.Profile == nil {
		return "", false
	}
	return s.Profile.Role, true
}

func (s Snapshot) clone() Snapshot {
	s.Profile = s.Profile.Clone()
	return s
}
