package guard

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/getkayan/mentorship/core/profile"
	"github.com/getkayan/mentorship/core/session"
)

// Table maps view paths to their requirements. Paths missing from the
// table require an authenticated principal.
type Table map[string]Requirement

// DefaultTable is the application's route table.
func DefaultTable() Table {
	return Table{
		"/":               Public(),
		"/join":           Public(),
		"/mentors/browse": Public(),

		"/login":                 GuestOnly(),
		"/signup":                GuestOnly(),
		"/mentor/login":          GuestOnly(),
		"/mentee/login":          GuestOnly(),
		"/organization/login":    GuestOnly(),
		"/mentor/register":       GuestOnly(),
		"/mentee/register":       GuestOnly(),
		"/organization/register": GuestOnly(),
		"/forgot-password":       GuestOnly(),

		"/dashboard":    Authenticated(),
		"/mentors":      Authenticated(),
		"/profile":      Authenticated(),
		"/mentor/apply": Authenticated(),

		"/mentee/dashboard":       RequireRoles(profile.RoleMentee),
		"/mentor/dashboard":       RequireRoles(profile.RoleMentor),
		"/organization/dashboard": RequireRoles(profile.RoleOrganization),
		"/admin/dashboard":        RequireRoles(profile.RoleAdmin, profile.RoleSuperAdmin),
		"/admin/registrations":    RequireRoles(profile.RoleSuperAdmin),
	}
}

// Normalize cleans a requested path: query and fragment are dropped, the
// path is made absolute and trailing slashes are removed.
func Normalize(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Requirement returns the requirement of p, or Authenticated when p is
// unknown.
func (t Table) Requirement(p string) Requirement {
	if req, ok := t[Normalize(p)]; ok {
		return req
	}
	return Authenticated()
}

// Evaluate looks up the requirement of requestedPath and evaluates it. The
// decision's ReturnTo keeps the path as requested.
func (t Table) Evaluate(s session.Snapshot, requestedPath string) Decision {
	return Evaluate(s, t.Requirement(requestedPath), requestedPath)
}

// Paths returns the table's paths in sorted order.
func (t Table) Paths() []string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Validate checks that redirects terminate: every role's home view admits
// that role, and the login view is reachable without a session.
func (t Table) Validate() error {
	var problems []string
	for _, role := range profile.Roles() {
		home := HomePath(role)
		if !t.Requirement(home).Permits(role) {
			problems = append(problems, fmt.Sprintf("home %s does not admit role %s", home, role))
		}
	}
	login := t.Requirement(LoginPath)
	if !login.public && !login.guestOnly {
		problems = append(problems, LoginPath+" requires a session")
	}
	if len(problems) > 0 {
		return fmt.Errorf("guard: invalid route table: %s", strings.Join(problems, "; "))
	}
	return nil
}
