// internal/domain/models/role.go
package models

import "strings"

// Role is the global capability a user holds in the wiki.
//
// Roles are totally ordered: viewer < editor < admin. Capability checks
// compare Levels, never role names.
type Role string

// User roles
const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// Level is the integer rank of a role. A higher level satisfies every
// requirement at or below it.
type Level int

// Capability levels. LevelAnonymous is held by requests without a session
// and by records carrying an unknown role string (fail closed).
const (
	LevelAnonymous Level = -1
	LevelViewer    Level = 0
	LevelEditor    Level = 1
	LevelAdmin     Level = 2
)

// Level returns the rank of r. Unknown roles rank as anonymous.
func (r Role) Level() Level {
	switch r {
	case RoleViewer:
		return LevelViewer
	case RoleEditor:
		return LevelEditor
	case RoleAdmin:
		return LevelAdmin
	default:
		return LevelAnonymous
	}
}

// Satisfies reports whether r meets the required level.
func (r Role) Satisfies(required Level) bool {
	return r.Level() >= required
}

func (r Role) String() string { return string(r) }

// String returns the lowest role name that holds l.
func (l Level) String() string {
	switch l {
	case LevelViewer:
		return string(RoleViewer)
	case LevelEditor:
		return string(RoleEditor)
	case LevelAdmin:
		return string(RoleAdmin)
	default:
		return "anonymous"
	}
}

// AllRoles returns all valid user roles, lowest first.
func AllRoles() []Role {
	return []Role{
		RoleViewer,
		RoleEditor,
		RoleAdmin,
	}
}

// ParseRole normalizes s and returns the matching role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !IsValidRole(r) {
		return "", false
	}
	return r, true
}

// IsValidRole checks if a role is valid.
func IsValidRole(role Role) bool {
	for _, r := range AllRoles() {
		if r == role {
			return true
		}
	}
	return false
}
