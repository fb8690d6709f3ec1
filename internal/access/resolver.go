// Package access decides what the current user may do to a shared list.
// It is pure: the answers depend only on the list's grants and the policy
// table below, never on network or store state.
package access

import (
	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
)

// Operation is a mutation the client can attempt on a list.
type Operation int

const (
	OpAddTask Operation = iota
	OpEditTask
	OpDeleteTask
	OpCompleteTask
	OpRenameList
	OpDeleteList
	OpManageSharing
)

var opNames = map[Operation]string{
	OpAddTask:       "add_task",
	OpEditTask:      "edit_task",
	OpDeleteTask:    "delete_task",
	OpCompleteTask:  "complete_task",
	OpRenameList:    "rename_list",
	OpDeleteList:    "delete_list",
	OpManageSharing: "manage_sharing",
}

func (o Operation) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return "unknown"
}

// policy is the total role -> allowed-operations table. Adding an Operation
// requires an explicit decision here for every role.
var policy = map[dom.Role]map[Operation]bool{
	dom.RoleOwner: {
		OpAddTask:       true,
		OpEditTask:      true,
		OpDeleteTask:    true,
		OpCompleteTask:  true,
		OpRenameList:    true,
		OpDeleteList:    true,
		OpManageSharing: true,
	},
	dom.RoleContributor: {
		OpAddTask:       true,
		OpEditTask:      true,
		OpDeleteTask:    true,
		OpCompleteTask:  true,
		OpRenameList:    false,
		OpDeleteList:    false,
		OpManageSharing: false,
	},
	dom.RoleViewer: {
		OpAddTask:       false,
		OpEditTask:      false,
		OpDeleteTask:    false,
		OpCompleteTask:  false,
		OpRenameList:    false,
		OpDeleteList:    false,
		OpManageSharing: false,
	},
}

// ResolveRole returns the explicit grant for userID on the list. ok is false
// when the user has no grant at all; no grant means no access, not viewer.
func ResolveRole(userID string, list *dom.TodoList) (dom.Role, bool) {
	if userID == "" || list == nil {
		return "", false
	}
	g, ok := list.GrantFor(userID)
	if !ok || !g.Role.Valid() {
		return "", false
	}
	return g.Role, true
}

// CanMutate reports whether userID may perform op on the list. The
// collaboration store consults this before any optimistic change; a false
// answer must never reach the network.
func CanMutate(userID string, list *dom.TodoList, op Operation) bool {
	role, ok := ResolveRole(userID, list)
	if !ok {
		return false
	}
	return policy[role][op]
}

// CanView reports whether userID may read the list: any explicit grant, or a
// personal ungrouped list the user owns.
func CanView(userID string, list *dom.TodoList) bool {
	if _, ok := ResolveRole(userID, list); ok {
		return true
	}
	return list != nil && list.GroupID == "" && len(list.Shared) == 0 && list.OwnerID == userID
}
