package domain

import "time"

// Task is a single todo item. It belongs to exactly one TodoList and is
// removed with it (cascade).
type Task struct {
	ID        string
	Title     string
	Notes     string
	Completed bool
	DueDate   *time.Time

	CreatedAt time.Time
}

// TodoList is the unit of sharing. Shared is the authoritative access
// control list; membership of a parent group is a visibility hint only and
// never grants write access by itself.
type TodoList struct {
	ID      string
	Title   string
	OwnerID string
	GroupID string // empty for a personal list
	Items   []Task
	Shared  []SharedUser

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FindTask returns the task with the given id and true, or false if the list
// has no such task.
func (l *TodoList) FindTask(taskID string) (Task, bool) {
	for _, t := range l.Items {
		if t.ID == taskID {
			return t, true
		}
	}
	return Task{}, false
}

// GrantFor returns the SharedUser entry for userID, or false if the user has
// no explicit grant on the list.
func (l *TodoList) GrantFor(userID string) (SharedUser, bool) {
	for _, s := range l.Shared {
		if s.UserID == userID {
			return s, true
		}
	}
	return SharedUser{}, false
}

// Clone returns a deep copy of the list. Rollback snapshots depend on the
// copy sharing no slices with the original.
func (l TodoList) Clone() TodoList {
	cp := l
	cp.Items = append([]Task(nil), l.Items...)
	cp.Shared = append([]SharedUser(nil), l.Shared...)
	return cp
}
