package domain

import "time"

// Group is a sharing scope for lists. Exactly one owner; ownership does not
// transfer.
type Group struct {
	ID      string
	Name    string
	OwnerID string
	Members []SharedUser
	Lists   []string // ids of lists attached to the group

	CreatedAt time.Time
}

// HasList reports whether the group already references listID.
func (g *Group) HasList(listID string) bool {
	for _, id := range g.Lists {
		if id == listID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the group.
func (g Group) Clone() Group {
	cp := g
	cp.Members = append([]SharedUser(nil), g.Members...)
	cp.Lists = append([]string(nil), g.Lists...)
	return cp
}
