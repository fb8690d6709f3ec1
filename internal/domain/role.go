package domain

// Role is a per-list access level. It is a closed set: code that maps roles
// to behavior should switch over all three values.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// SharedUser is one access grant on a list or group: exactly one entry per
// (user, list) pair.
type SharedUser struct {
	UserID string
	Name   string
	Email  string
	Role   Role
}
