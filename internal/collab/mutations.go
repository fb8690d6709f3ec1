package collab

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/thompsonmanda08/task-sync-sub001/internal/access"
	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// Every mutation follows the same pipeline: validate input, consult the
// permission resolver, apply locally and record the inverse, then dispatch
// through the gateway. The synchronous error covers steps that never reach
// the network (validation, permission, unknown entity); the channel resolves
// once the server confirmed (nil) or the mutation was rolled back.

const tempIDPrefix = "tmp-"

func tempID() string { return tempIDPrefix + uuid.NewString() }

// TaskPatch is a partial task update; nil fields stay unchanged. DueDate is
// applied only when SetDueDate is true, so a nil DueDate with SetDueDate set
// clears the date rather than leaving it alone.
type TaskPatch struct {
	Title      *string
	Notes      *string
	DueDate    *time.Time
	SetDueDate bool
}

func (s *Store) actor() (dom.User, error) {
	u, ok := s.sessions.CurrentUser()
	if !ok {
		return dom.User{}, ErrNotAuthenticated
	}
	return u, nil
}

func validTitle(field, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", invalid(field, "must not be empty")
	}
	if len(title) > 120 {
		return "", invalid(field, "must be at most 120 characters")
	}
	return title, nil
}

// CreateList creates a list owned by the current user, optionally inside a
// group the user belongs to.
func (s *Store) CreateList(ctx context.Context, title, groupID string) (dom.TodoList, <-chan error, error) {
	title, err := validTitle("name", title)
	if err != nil {
		return dom.TodoList{}, nil, err
	}
	u, err := s.actor()
	if err != nil {
		return dom.TodoList{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var group *dom.Group
	if groupID != "" {
		g, ok := s.groups[groupID]
		if !ok {
			return dom.TodoList{}, nil, ErrNotFound
		}
		if _, member := memberOf(g, u.ID); !member {
			return dom.TodoList{}, nil, ErrPermissionDenied
		}
		group = g
	}

	now := time.Now().UTC()
	list := &dom.TodoList{
		ID:      tempID(),
		Title:   title,
		OwnerID: u.ID,
		GroupID: groupID,
		Shared: []dom.SharedUser{
			{UserID: u.ID, Name: u.Name, Email: u.Email, Role: dom.RoleOwner},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists[list.ID] = list
	s.listOrder = append(s.listOrder, list.ID)
	if group != nil {
		group.Lists = append(group.Lists, list.ID)
	}

	clientID := list.ID
	p := &pendingOp{
		entityID: clientID,
		ctx:      ctx,
		op: gw.Operation{
			ID:         uuid.NewString(),
			Kind:       gw.OpCreateList,
			CreateList: &dto.CreateListRequest{Name: title, GroupID: groupID},
		},
		inverse: func() {
			s.removeListLocked(clientID)
		},
		reconcile: func(ent gw.ServerEntity) {
			if ent.List == nil {
				return
			}
			s.adoptListIDLocked(list, clientID, ent.List)
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return list.Clone(), ch, nil
}

// RenameList changes a list title (owner only).
func (s *Store) RenameList(ctx context.Context, listID, title string) (dom.TodoList, <-chan error, error) {
	title, err := validTitle("name", title)
	if err != nil {
		return dom.TodoList{}, nil, err
	}
	u, err := s.actor()
	if err != nil {
		return dom.TodoList{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return dom.TodoList{}, nil, ErrNotFound
	}
	if !access.CanMutate(u.ID, list, access.OpRenameList) {
		return dom.TodoList{}, nil, ErrPermissionDenied
	}

	prevTitle, prevUpdated := list.Title, list.UpdatedAt
	list.Title = title
	list.UpdatedAt = time.Now().UTC()

	name := title
	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:         uuid.NewString(),
			Kind:       gw.OpRenameList,
			ListID:     listID,
			UpdateList: &dto.UpdateListRequest{Name: &name},
		},
		inverse: func() {
			list.Title = prevTitle
			list.UpdatedAt = prevUpdated
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return list.Clone(), ch, nil
}

// DeleteList removes a list and, by cascade, all of its tasks. A rollback
// restores the list and tasks exactly as they were.
func (s *Store) DeleteList(ctx context.Context, listID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return nil, ErrNotFound
	}
	if !access.CanMutate(u.ID, list, access.OpDeleteList) {
		return nil, ErrPermissionDenied
	}

	snapshot := list.Clone()
	orderIdx := indexOf(s.listOrder, listID)
	groupIdx := -1
	var group *dom.Group
	if list.GroupID != "" {
		if g, ok := s.groups[list.GroupID]; ok {
			group = g
			groupIdx = indexOf(g.Lists, listID)
		}
	}
	s.removeListLocked(listID)

	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:     uuid.NewString(),
			Kind:   gw.OpDeleteList,
			ListID: listID,
		},
		inverse: func() {
			restored := snapshot.Clone()
			s.lists[listID] = &restored
			s.listOrder = insertAt(s.listOrder, orderIdx, listID)
			if group != nil && groupIdx >= 0 {
				group.Lists = insertAt(group.Lists, groupIdx, listID)
			}
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// AddTask appends a task to a list. The returned task carries a temporary
// id until reconciliation substitutes the server-assigned one.
func (s *Store) AddTask(ctx context.Context, listID, title, notes string, due *time.Time) (dom.Task, <-chan error, error) {
	title, err := validTitle("task", title)
	if err != nil {
		return dom.Task{}, nil, err
	}
	if len(notes) > 1000 {
		return dom.Task{}, nil, invalid("description", "must be at most 1000 characters")
	}
	u, err := s.actor()
	if err != nil {
		return dom.Task{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return dom.Task{}, nil, ErrNotFound
	}
	if !access.CanMutate(u.ID, list, access.OpAddTask) {
		return dom.Task{}, nil, ErrPermissionDenied
	}

	now := time.Now().UTC()
	task := dom.Task{
		ID:        tempID(),
		Title:     title,
		Notes:     notes,
		DueDate:   due,
		CreatedAt: now,
	}
	prevUpdated := list.UpdatedAt
	list.Items = append(list.Items, task)
	list.UpdatedAt = now

	clientTaskID := task.ID
	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:     uuid.NewString(),
			Kind:   gw.OpAddTask,
			ListID: listID,
			CreateTask: &dto.CreateTaskRequest{
				Task:        title,
				Description: notes,
				DueDate:     dto.NewDueDate(due),
			},
		},
		inverse: func() {
			for i := range list.Items {
				if list.Items[i].ID == clientTaskID {
					list.Items = append(list.Items[:i], list.Items[i+1:]...)
					break
				}
			}
			list.UpdatedAt = prevUpdated
		},
		reconcile: func(ent gw.ServerEntity) {
			if ent.Task == nil {
				return
			}
			for i := range list.Items {
				if list.Items[i].ID == clientTaskID {
					list.Items[i].ID = ent.Task.ID
					if !ent.Task.CreatedAt.IsZero() {
						list.Items[i].CreatedAt = ent.Task.CreatedAt
					}
					break
				}
			}
			s.retargetPendingLocked(list.ID, clientTaskID, ent.Task.ID)
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return task, ch, nil
}

// EditTask applies a partial update to a task.
func (s *Store) EditTask(ctx context.Context, listID, taskID string, patch TaskPatch) (dom.Task, <-chan error, error) {
	req := dto.UpdateTaskRequest{}
	if patch.Title != nil {
		title, err := validTitle("task", *patch.Title)
		if err != nil {
			return dom.Task{}, nil, err
		}
		patch.Title = &title
		req.Task = &title
	}
	if patch.Notes != nil {
		if len(*patch.Notes) > 1000 {
			return dom.Task{}, nil, invalid("description", "must be at most 1000 characters")
		}
		req.Description = patch.Notes
	}
	if patch.SetDueDate {
		d := dto.NewDueDate(patch.DueDate)
		req.DueDate = &d
	}
	u, err := s.actor()
	if err != nil {
		return dom.Task{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, task, err := s.taskForMutation(u.ID, listID, taskID, access.OpEditTask)
	if err != nil {
		return dom.Task{}, nil, err
	}

	prev := *task
	prevUpdated := list.UpdatedAt
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Notes != nil {
		task.Notes = *patch.Notes
	}
	if patch.SetDueDate {
		task.DueDate = patch.DueDate
	}
	list.UpdatedAt = time.Now().UTC()

	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:         uuid.NewString(),
			Kind:       gw.OpEditTask,
			ListID:     listID,
			TaskID:     taskID,
			UpdateTask: &req,
		},
		inverse: func() {
			if t := findTask(list, prev.ID); t != nil {
				*t = prev
			}
			list.UpdatedAt = prevUpdated
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return *task, ch, nil
}

// CompleteTask sets a task's completed flag.
func (s *Store) CompleteTask(ctx context.Context, listID, taskID string, completed bool) (dom.Task, <-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return dom.Task{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, task, err := s.taskForMutation(u.ID, listID, taskID, access.OpCompleteTask)
	if err != nil {
		return dom.Task{}, nil, err
	}

	prev := *task
	prevUpdated := list.UpdatedAt
	task.Completed = completed
	list.UpdatedAt = time.Now().UTC()

	done := completed
	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:         uuid.NewString(),
			Kind:       gw.OpCompleteTask,
			ListID:     listID,
			TaskID:     taskID,
			UpdateTask: &dto.UpdateTaskRequest{IsCompleted: &done},
		},
		inverse: func() {
			if t := findTask(list, prev.ID); t != nil {
				*t = prev
			}
			list.UpdatedAt = prevUpdated
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return *task, ch, nil
}

// DeleteTask removes a task from its list.
func (s *Store) DeleteTask(ctx context.Context, listID, taskID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, task, err := s.taskForMutation(u.ID, listID, taskID, access.OpDeleteTask)
	if err != nil {
		return nil, err
	}

	snapshot := *task
	idx := -1
	for i := range list.Items {
		if list.Items[i].ID == taskID {
			idx = i
			break
		}
	}
	prevUpdated := list.UpdatedAt
	list.Items = append(list.Items[:idx], list.Items[idx+1:]...)
	list.UpdatedAt = time.Now().UTC()

	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:     uuid.NewString(),
			Kind:   gw.OpDeleteTask,
			ListID: listID,
			TaskID: taskID,
		},
		inverse: func() {
			list.Items = insertTaskAt(list.Items, idx, snapshot)
			list.UpdatedAt = prevUpdated
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// UpdateSharing grants or changes target's role on a list. A list has
// exactly one owner and that grant is immutable.
func (s *Store) UpdateSharing(ctx context.Context, listID string, target dom.SharedUser) (<-chan error, error) {
	if target.UserID == "" {
		return nil, invalid("user_id", "must not be empty")
	}
	if !target.Role.Valid() {
		return nil, invalid("role", "must be owner, contributor or viewer")
	}
	if target.Role == dom.RoleOwner {
		return nil, invalid("role", "ownership does not transfer")
	}
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return nil, ErrNotFound
	}
	if !access.CanMutate(u.ID, list, access.OpManageSharing) {
		return nil, ErrPermissionDenied
	}
	if target.UserID == list.OwnerID {
		return nil, invalid("user_id", "the list owner's grant is immutable")
	}

	prevShared := append([]dom.SharedUser(nil), list.Shared...)
	prevUpdated := list.UpdatedAt
	upsertGrant(list, target)
	list.UpdatedAt = time.Now().UTC()

	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:     uuid.NewString(),
			Kind:   gw.OpShareList,
			ListID: listID,
			Share:  &dto.ShareRequest{UserID: target.UserID, Role: string(target.Role)},
		},
		inverse: func() {
			list.Shared = prevShared
			list.UpdatedAt = prevUpdated
		},
		reconcile: func(ent gw.ServerEntity) {
			// The shared set is the authoritative ACL; adopt the server's.
			if ent.List != nil && ent.List.Shared != nil {
				list.Shared = append([]dom.SharedUser(nil), ent.List.Shared...)
			}
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// RemoveSharedUser revokes a grant. The owner grant cannot be revoked.
func (s *Store) RemoveSharedUser(ctx context.Context, listID, userID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list, ok := s.lists[listID]
	if !ok {
		return nil, ErrNotFound
	}
	if !access.CanMutate(u.ID, list, access.OpManageSharing) {
		return nil, ErrPermissionDenied
	}
	if userID == list.OwnerID {
		return nil, invalid("user_id", "the list owner's grant is immutable")
	}
	if _, ok := list.GrantFor(userID); !ok {
		return nil, ErrNotFound
	}

	prevShared := append([]dom.SharedUser(nil), list.Shared...)
	prevUpdated := list.UpdatedAt
	removeGrant(list, userID)
	list.UpdatedAt = time.Now().UTC()

	p := &pendingOp{
		entityID: listID,
		ctx:      ctx,
		op: gw.Operation{
			ID:     uuid.NewString(),
			Kind:   gw.OpShareList,
			ListID: listID,
			Share:  &dto.ShareRequest{UserID: userID, Remove: true},
		},
		inverse: func() {
			list.Shared = prevShared
			list.UpdatedAt = prevUpdated
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// CreateGroup creates a group owned by the current user.
func (s *Store) CreateGroup(ctx context.Context, name string) (dom.Group, <-chan error, error) {
	name, err := validTitle("name", name)
	if err != nil {
		return dom.Group{}, nil, err
	}
	u, err := s.actor()
	if err != nil {
		return dom.Group{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	group := &dom.Group{
		ID:      tempID(),
		Name:    name,
		OwnerID: u.ID,
		Members: []dom.SharedUser{
			{UserID: u.ID, Name: u.Name, Email: u.Email, Role: dom.RoleOwner},
		},
		CreatedAt: time.Now().UTC(),
	}
	s.groups[group.ID] = group
	s.groupOrder = append(s.groupOrder, group.ID)

	clientID := group.ID
	p := &pendingOp{
		entityID: clientID,
		ctx:      ctx,
		op: gw.Operation{
			ID:          uuid.NewString(),
			Kind:        gw.OpCreateGroup,
			CreateGroup: &dto.CreateGroupRequest{Name: name},
		},
		inverse: func() {
			delete(s.groups, clientID)
			s.groupOrder = removeString(s.groupOrder, clientID)
		},
		reconcile: func(ent gw.ServerEntity) {
			if ent.Group == nil {
				return
			}
			s.adoptGroupIDLocked(group, clientID, ent.Group)
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return group.Clone(), ch, nil
}

// AddListToGroup attaches an existing list to a group (group owner only).
func (s *Store) AddListToGroup(ctx context.Context, groupID, listID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	list, ok := s.lists[listID]
	if !ok {
		return nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return nil, ErrPermissionDenied
	}
	if group.HasList(listID) {
		return nil, invalid("list_id", "already in the group")
	}

	prevGroupID := list.GroupID
	group.Lists = append(group.Lists, listID)
	list.GroupID = groupID

	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:         uuid.NewString(),
			Kind:       gw.OpAttachList,
			GroupID:    groupID,
			AttachList: &dto.AttachListRequest{ListID: listID},
		},
		inverse: func() {
			group.Lists = removeString(group.Lists, listID)
			list.GroupID = prevGroupID
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// RenameGroup changes a group name (group owner only).
func (s *Store) RenameGroup(ctx context.Context, groupID, name string) (dom.Group, <-chan error, error) {
	name, err := validTitle("name", name)
	if err != nil {
		return dom.Group{}, nil, err
	}
	u, err := s.actor()
	if err != nil {
		return dom.Group{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return dom.Group{}, nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return dom.Group{}, nil, ErrPermissionDenied
	}

	prevName := group.Name
	group.Name = name

	n := name
	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:          uuid.NewString(),
			Kind:        gw.OpRenameGroup,
			GroupID:     groupID,
			UpdateGroup: &dto.UpdateGroupRequest{Name: &n},
		},
		inverse: func() {
			group.Name = prevName
		},
		done: make(chan error, 1),
	}
	ch := s.record(p)
	return group.Clone(), ch, nil
}

// DeleteGroup removes a group (owner only). Member lists survive, detached.
func (s *Store) DeleteGroup(ctx context.Context, groupID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return nil, ErrPermissionDenied
	}

	snapshot := group.Clone()
	orderIdx := indexOf(s.groupOrder, groupID)
	var detached []*dom.TodoList
	for _, l := range s.lists {
		if l.GroupID == groupID {
			l.GroupID = ""
			detached = append(detached, l)
		}
	}
	delete(s.groups, groupID)
	s.groupOrder = removeString(s.groupOrder, groupID)

	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:      uuid.NewString(),
			Kind:    gw.OpDeleteGroup,
			GroupID: groupID,
		},
		inverse: func() {
			restored := snapshot.Clone()
			s.groups[groupID] = &restored
			s.groupOrder = insertAt(s.groupOrder, orderIdx, groupID)
			for _, l := range detached {
				l.GroupID = groupID
			}
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// RemoveListFromGroup detaches a list from a group (group owner only). The
// list itself survives as a personal list.
func (s *Store) RemoveListFromGroup(ctx context.Context, groupID, listID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return nil, ErrPermissionDenied
	}
	if !group.HasList(listID) {
		return nil, ErrNotFound
	}

	listIdx := indexOf(group.Lists, listID)
	group.Lists = removeString(group.Lists, listID)
	var list *dom.TodoList
	prevGroupID := ""
	if l, ok := s.lists[listID]; ok && l.GroupID == groupID {
		list = l
		prevGroupID = l.GroupID
		l.GroupID = ""
	}

	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:      uuid.NewString(),
			Kind:    gw.OpDetachList,
			GroupID: groupID,
			ListID:  listID,
		},
		inverse: func() {
			group.Lists = insertAt(group.Lists, listIdx, listID)
			if list != nil {
				list.GroupID = prevGroupID
			}
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// UpdateGroupMember adds a member or changes an existing member's role
// (group owner only). The owner's membership is immutable.
func (s *Store) UpdateGroupMember(ctx context.Context, groupID string, member dom.SharedUser) (<-chan error, error) {
	if member.UserID == "" {
		return nil, invalid("user_id", "must not be empty")
	}
	if !member.Role.Valid() {
		return nil, invalid("role", "must be owner, contributor or viewer")
	}
	if member.Role == dom.RoleOwner {
		return nil, invalid("role", "ownership does not transfer")
	}
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return nil, ErrPermissionDenied
	}
	if member.UserID == group.OwnerID {
		return nil, invalid("user_id", "the group owner's membership is immutable")
	}

	prevMembers := append([]dom.SharedUser(nil), group.Members...)
	upsertMember(group, member)

	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:      uuid.NewString(),
			Kind:    gw.OpGroupMember,
			GroupID: groupID,
			Share:   &dto.ShareRequest{UserID: member.UserID, Role: string(member.Role)},
		},
		inverse: func() {
			group.Members = prevMembers
		},
		reconcile: func(ent gw.ServerEntity) {
			// Membership is server-authoritative; adopt its view.
			if ent.Group != nil && ent.Group.Members != nil {
				group.Members = append([]dom.SharedUser(nil), ent.Group.Members...)
			}
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// RemoveGroupMember revokes a membership (group owner only). The owner
// cannot be removed.
func (s *Store) RemoveGroupMember(ctx context.Context, groupID, userID string) (<-chan error, error) {
	u, err := s.actor()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.groups[groupID]
	if !ok {
		return nil, ErrNotFound
	}
	if group.OwnerID != u.ID {
		return nil, ErrPermissionDenied
	}
	if userID == group.OwnerID {
		return nil, invalid("user_id", "the group owner's membership is immutable")
	}
	if _, member := memberOf(group, userID); !member {
		return nil, ErrNotFound
	}

	prevMembers := append([]dom.SharedUser(nil), group.Members...)
	removeMember(group, userID)

	p := &pendingOp{
		entityID: groupID,
		ctx:      ctx,
		op: gw.Operation{
			ID:      uuid.NewString(),
			Kind:    gw.OpGroupMember,
			GroupID: groupID,
			Share:   &dto.ShareRequest{UserID: userID, Remove: true},
		},
		inverse: func() {
			group.Members = prevMembers
		},
		done: make(chan error, 1),
	}
	return s.record(p), nil
}

// taskForMutation resolves the list and task and runs the permission check.
// Caller holds s.mu.
func (s *Store) taskForMutation(userID, listID, taskID string, op access.Operation) (*dom.TodoList, *dom.Task, error) {
	list, ok := s.lists[listID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if !access.CanMutate(userID, list, op) {
		return nil, nil, ErrPermissionDenied
	}
	task := findTask(list, taskID)
	if task == nil {
		return nil, nil, ErrNotFound
	}
	return list, task, nil
}

// adoptListIDLocked substitutes the server id for a temp list id everywhere
// the temp id is referenced. Caller holds s.mu.
func (s *Store) adoptListIDLocked(list *dom.TodoList, tempID string, server *dom.TodoList) {
	delete(s.lists, tempID)
	list.ID = server.ID
	if !server.CreatedAt.IsZero() {
		list.CreatedAt = server.CreatedAt
		list.UpdatedAt = server.UpdatedAt
	}
	s.lists[list.ID] = list
	replaceString(s.listOrder, tempID, list.ID)
	for _, g := range s.groups {
		replaceString(g.Lists, tempID, list.ID)
	}
	s.retargetPendingLocked(tempID, tempID, list.ID)
	s.rekeyQueueLocked(tempID, list.ID)
}

// adoptGroupIDLocked is adoptListIDLocked for groups. Caller holds s.mu.
func (s *Store) adoptGroupIDLocked(group *dom.Group, tempID string, server *dom.Group) {
	delete(s.groups, tempID)
	group.ID = server.ID
	if !server.CreatedAt.IsZero() {
		group.CreatedAt = server.CreatedAt
	}
	s.groups[group.ID] = group
	replaceString(s.groupOrder, tempID, group.ID)
	for _, l := range s.lists {
		if l.GroupID == tempID {
			l.GroupID = group.ID
		}
	}
	s.retargetPendingLocked(tempID, tempID, group.ID)
	s.rekeyQueueLocked(tempID, group.ID)
}

func findTask(list *dom.TodoList, taskID string) *dom.Task {
	for i := range list.Items {
		if list.Items[i].ID == taskID {
			return &list.Items[i]
		}
	}
	return nil
}

func memberOf(g *dom.Group, userID string) (dom.SharedUser, bool) {
	if g.OwnerID == userID {
		return dom.SharedUser{UserID: userID, Role: dom.RoleOwner}, true
	}
	for _, m := range g.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return dom.SharedUser{}, false
}

func upsertGrant(list *dom.TodoList, grant dom.SharedUser) {
	for i := range list.Shared {
		if list.Shared[i].UserID == grant.UserID {
			list.Shared[i] = grant
			return
		}
	}
	list.Shared = append(list.Shared, grant)
}

func upsertMember(g *dom.Group, member dom.SharedUser) {
	for i := range g.Members {
		if g.Members[i].UserID == member.UserID {
			g.Members[i] = member
			return
		}
	}
	g.Members = append(g.Members, member)
}

func removeMember(g *dom.Group, userID string) {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return
		}
	}
}

func removeGrant(list *dom.TodoList, userID string) {
	for i := range list.Shared {
		if list.Shared[i].UserID == userID {
			list.Shared = append(list.Shared[:i], list.Shared[i+1:]...)
			return
		}
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func insertAt(ids []string, idx int, id string) []string {
	if idx < 0 || idx > len(ids) {
		return append(ids, id)
	}
	ids = append(ids, "")
	copy(ids[idx+1:], ids[idx:])
	ids[idx] = id
	return ids
}

func insertTaskAt(items []dom.Task, idx int, t dom.Task) []dom.Task {
	if idx < 0 || idx > len(items) {
		return append(items, t)
	}
	items = append(items, dom.Task{})
	copy(items[idx+1:], items[idx:])
	items[idx] = t
	return items
}

func removeString(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func replaceString(ids []string, old, new string) {
	for i, v := range ids {
		if v == old {
			ids[i] = new
			return
		}
	}
}
