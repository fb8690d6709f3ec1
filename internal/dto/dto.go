// Package dto holds the JSON shapes exchanged with the remote task-sync API.
package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
)

// Envelope is the response wrapper used by every API endpoint:
// {success, message, data, status}.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Status  int             `json:"status"`
}

// DueDate parses due_date from JSON as either date-only ("2006-01-02") or RFC3339.
// Date-only is stored as start of that day in UTC.
type DueDate struct{ t *time.Time }

func NewDueDate(t *time.Time) DueDate { return DueDate{t: t} }

func (d *DueDate) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		d.t = nil
		return nil
	}
	s := strings.TrimSpace(*raw)
	layouts := []string{
		"2006-01-02", // date only
		time.RFC3339, // 2006-01-02T15:04:05Z07:00
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			if layout == "2006-01-02" {
				parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			}
			d.t = &parsed
			return nil
		}
	}
	return fmt.Errorf("due_date: use date (YYYY-MM-DD) or RFC3339 datetime")
}

func (d DueDate) MarshalJSON() ([]byte, error) {
	if d.t == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.t.Format(time.RFC3339))
}

// Ptr returns *time.Time for use in the domain model.
func (d DueDate) Ptr() *time.Time { return d.t }

// LoginRequest is the JSON body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginData is the data payload returned by login and verify.
type LoginData struct {
	User  UserPayload `json:"user"`
	Token string      `json:"token,omitempty"`
}

type UserPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

func (u UserPayload) ToDomain() dom.User {
	return dom.User{ID: u.ID, Name: u.Name, Email: u.Email, SiteRole: u.Role}
}

func UserFromDomain(u dom.User) UserPayload {
	return UserPayload{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.SiteRole}
}

type SharedUserPayload struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

func (s SharedUserPayload) ToDomain() dom.SharedUser {
	return dom.SharedUser{UserID: s.UserID, Name: s.Name, Email: s.Email, Role: dom.Role(s.Role)}
}

type TaskPayload struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	Description string     `json:"description,omitempty"`
	IsCompleted bool       `json:"is_completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (t TaskPayload) ToDomain() dom.Task {
	return dom.Task{
		ID:        t.ID,
		Title:     t.Task,
		Notes:     t.Description,
		Completed: t.IsCompleted,
		DueDate:   t.DueDate,
		CreatedAt: t.CreatedAt,
	}
}

func TaskFromDomain(t dom.Task) TaskPayload {
	return TaskPayload{
		ID:          t.ID,
		Task:        t.Title,
		Description: t.Notes,
		IsCompleted: t.Completed,
		DueDate:     t.DueDate,
		CreatedAt:   t.CreatedAt,
	}
}

type ListPayload struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	OwnerID    string              `json:"owner_id"`
	GroupID    string              `json:"group_id,omitempty"`
	TodoItems  []TaskPayload       `json:"todo_items"`
	SharedWith []SharedUserPayload `json:"shared_with"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

func (l ListPayload) ToDomain() dom.TodoList {
	out := dom.TodoList{
		ID:        l.ID,
		Title:     l.Name,
		OwnerID:   l.OwnerID,
		GroupID:   l.GroupID,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
	for _, t := range l.TodoItems {
		out.Items = append(out.Items, t.ToDomain())
	}
	for _, s := range l.SharedWith {
		out.Shared = append(out.Shared, s.ToDomain())
	}
	return out
}

type GroupPayload struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	OwnerID   string              `json:"owner_id"`
	Members   []SharedUserPayload `json:"members"`
	Lists     []string            `json:"lists"`
	CreatedAt time.Time           `json:"created_at"`
}

func (g GroupPayload) ToDomain() dom.Group {
	out := dom.Group{
		ID:        g.ID,
		Name:      g.Name,
		OwnerID:   g.OwnerID,
		Lists:     g.Lists,
		CreatedAt: g.CreatedAt,
	}
	for _, m := range g.Members {
		out.Members = append(out.Members, m.ToDomain())
	}
	return out
}

// CreateListRequest is the JSON body for POST /list.
type CreateListRequest struct {
	Name    string `json:"name" binding:"required,min=1,max=120"`
	GroupID string `json:"group_id,omitempty"`
}

// UpdateListRequest is the JSON body for PATCH /list/:list_id. Nil = leave unchanged.
type UpdateListRequest struct {
	Name *string `json:"name,omitempty" binding:"omitempty,min=1,max=120"`
}

// CreateTaskRequest is the JSON body for POST /list/:list_id/todo.
type CreateTaskRequest struct {
	Task        string  `json:"task" binding:"required,min=1,max=120"`
	Description string  `json:"description,omitempty" binding:"max=1000"`
	DueDate     DueDate `json:"due_date"` // optional: "2026-02-19" or RFC3339
}

// UpdateTaskRequest is the JSON body for PATCH /list/:list_id/todo/:task_id.
type UpdateTaskRequest struct {
	Task        *string  `json:"task,omitempty" binding:"omitempty,min=1,max=120"`
	Description *string  `json:"description,omitempty" binding:"omitempty,max=1000"`
	IsCompleted *bool    `json:"is_completed,omitempty"`
	DueDate     *DueDate `json:"due_date,omitempty"`
}

// ShareRequest is the JSON body for PATCH /list/:list_id/share.
type ShareRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role,omitempty"`   // empty with Remove=true revokes
	Remove bool   `json:"remove,omitempty"` // true = revoke the grant
}

// CreateGroupRequest is the JSON body for POST /groups/new.
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,min=1,max=120"`
}

// UpdateGroupRequest is the JSON body for PATCH /groups/:group_id. Nil = leave unchanged.
type UpdateGroupRequest struct {
	Name *string `json:"name,omitempty" binding:"omitempty,min=1,max=120"`
}

// AttachListRequest is the JSON body for POST /groups/:group_id/list.
type AttachListRequest struct {
	ListID string `json:"list_id" binding:"required"`
}
