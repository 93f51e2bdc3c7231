// Package guard decides whether a navigation to a view is allowed for the
// current session, and where to send the principal otherwise.
//
// Evaluate is a pure function of its inputs. Rules, first match wins:
//
//  1. public views are allowed
//  2. without an authenticated session, redirect to /login (remembering the path)
//  3. views open to any authenticated principal are allowed
//  4. without a loaded profile, redirect to /login
//  5. a permitted role is allowed
//  6. otherwise redirect to the role's home view
//
// Guest-only views (the login and sign-up pages) send an authenticated
// principal with a profile to its home view instead.
package guard

import (
	"github.com/getkayan/mentorship/core/profile"
	"github.com/getkayan/mentorship/core/session"
)

// LoginPath is where unauthenticated navigations are sent.
const LoginPath = "/login"

// Decision is the outcome of Evaluate. RedirectPath is empty when Allow is
// true. ReturnTo is the originally requested path on login redirects.
type Decision struct {
	Allow        bool   `json:"allow"`
	RedirectPath string `json:"redirect_path,omitempty"`
	ReturnTo     string `json:"return_to,omitempty"`
}

// Requirement describes who may open a view.
type Requirement struct {
	public    bool
	guestOnly bool
	roles     []profile.Role
}

// Public allows everyone.
func Public() Requirement { return Requirement{public: true} }

// GuestOnly allows everyone except authenticated principals with a profile.
func GuestOnly() Requirement { return Requirement{guestOnly: true} }

// Authenticated allows any authenticated principal.
func Authenticated() Requirement { return Requirement{} }

// RequireRoles allows authenticated principals holding one of roles. With no
// roles it is the same as Authenticated.
func RequireRoles(roles ...profile.Role) Requirement {
	return Requirement{roles: append([]profile.Role(nil), roles...)}
}

// IsPublic reports whether the requirement admits everyone.
func (r Requirement) IsPublic() bool { return r.public }

// Roles returns a copy of the permitted roles.
func (r Requirement) Roles() []profile.Role {
	return append([]profile.Role(nil), r.roles...)
}

// Permits reports whether role satisfies the requirement, assuming an
// authenticated principal with a loaded profile.
func (r Requirement) Permits(role profile.Role) bool {
	if r.public || len(r.roles) == 0 {
		return !r.guestOnly
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return true
		}
	}
	return false
}

func allow() Decision { return Decision{Allow: true} }

func redirect(path string) Decision { return Decision{RedirectPath: path} }

// Evaluate decides a navigation to requestedPath under req.
func Evaluate(s session.Snapshot, req Requirement, requestedPath string) Decision {
	if req.guestOnly {
		if s.Status == session.StatusAuthenticated && s.Profile != nil {
			return redirect(HomePath(s.Profile.Role))
		}
		return allow()
	}
	if req.public {
		return allow()
	}
	if s.Status != session.StatusAuthenticated {
		return Decision{RedirectPath: LoginPath, ReturnTo: requestedPath}
	}
	if len(req.roles) == 0 {
		return allow()
	}
	if s.Profile == nil {
		return redirect(LoginPath)
	}
	if req.Permits(s.Profile.Role) {
		return allow()
	}
	return redirect(HomePath(s.Profile.Role))
}

// HomePath returns the landing view of a role. It is total: unknown roles
// land on the generic dashboard.
func HomePath(role profile.Role) string {
	switch role {
	case profile.RoleOrganization:
		return "/organization/dashboard"
	case profile.RoleMentee:
		return "/mentee/dashboard"
	case profile.RoleMentor:
		return "/mentor/dashboard"
	case profile.RoleAdmin, profile.RoleSuperAdmin:
		return "/admin/dashboard"
	default:
		return "/dashboard"
	}
}
