package domain

// User is the authenticated account identity. Owned by the session store
// while a session is active; cleared on logout.
type User struct {
	ID       string
	Name     string
	Email    string
	SiteRole string // site-level role, distinct from the per-list Role
}
