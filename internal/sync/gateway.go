// Package sync is the boundary between the local stores and the remote
// task-sync API. It normalizes every failure into *Error so the stores can
// decide between rollback, refetch and session re-verification without
// knowing HTTP.
package sync

import (
	"context"

	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
)

// OpKind identifies the remote mutation an Operation performs.
type OpKind int

const (
	OpCreateList OpKind = iota
	OpRenameList
	OpDeleteList
	OpAddTask
	OpEditTask
	OpDeleteTask
	OpCompleteTask
	OpShareList
	OpCreateGroup
	OpRenameGroup
	OpDeleteGroup
	OpAttachList
	OpDetachList
	OpGroupMember
)

// Operation is one mutation in flight. ID is the client-generated operation
// id; the pending ledger uses it to match responses to optimistic state.
type Operation struct {
	ID   string
	Kind OpKind

	ListID  string
	TaskID  string
	GroupID string

	CreateList  *dto.CreateListRequest
	UpdateList  *dto.UpdateListRequest
	CreateTask  *dto.CreateTaskRequest
	UpdateTask  *dto.UpdateTaskRequest
	Share       *dto.ShareRequest
	CreateGroup *dto.CreateGroupRequest
	UpdateGroup *dto.UpdateGroupRequest
	AttachList  *dto.AttachListRequest
}

// ServerEntity is the server's view of whatever an Operation touched. At
// most one field is set; deletions return an empty ServerEntity.
type ServerEntity struct {
	List  *dom.TodoList
	Task  *dom.Task
	Group *dom.Group
}

// Gateway sends mutations and queries to the remote API on behalf of the
// collaboration store.
type Gateway interface {
	Send(ctx context.Context, op Operation) (ServerEntity, error)
	FetchLists(ctx context.Context) ([]dom.TodoList, error)
	FetchList(ctx context.Context, listID string) (dom.TodoList, error)
	FetchGroups(ctx context.Context) ([]dom.Group, error)
}

// AuthAPI is the slice of the remote API the session store depends on.
type AuthAPI interface {
	// Login exchanges credentials for a user and an access token.
	Login(ctx context.Context, email, password string) (dom.User, string, error)
	// Verify validates token and returns the user it belongs to.
	Verify(ctx context.Context, token string) (dom.User, error)
	// Revoke invalidates token remotely. Best effort on logout.
	Revoke(ctx context.Context, token string) error
}
