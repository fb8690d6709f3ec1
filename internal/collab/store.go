// Package collab owns the working set of groups, lists and tasks for the
// current identity. Mutations apply optimistically under a pending-operation
// ledger and reconcile against the remote source of truth.
package collab

import (
	"context"
	"fmt"
	stdsync "sync"

	"github.com/thompsonmanda08/task-sync-sub001/internal/access"
	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/session"
	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// Store mediates every read and optimistic write of collaboration state.
type Store struct {
	gateway  gw.Gateway
	sessions *session.Store

	mu         stdsync.Mutex
	lists      map[string]*dom.TodoList
	listOrder  []string
	groups     map[string]*dom.Group
	groupOrder []string

	ledger map[string]*pendingOp   // op id -> pending mutation
	queues map[string][]*pendingOp // entity id -> FIFO chain
}

// New returns an empty Store bound to the gateway and session store. The
// store purges itself on every session transition, so a second login on the
// same device never sees the first user's data.
func New(gateway gw.Gateway, sessions *session.Store) *Store {
	s := &Store{
		gateway:  gateway,
		sessions: sessions,
		lists:    make(map[string]*dom.TodoList),
		groups:   make(map[string]*dom.Group),
		ledger:   make(map[string]*pendingOp),
		queues:   make(map[string][]*pendingOp),
	}
	sessions.OnTransition(func(ev session.Event) {
		// Both directions wipe: Unauthenticated for the departing user,
		// Authenticated because the arriving identity may differ.
		s.Purge()
	})
	return s
}

// Purge discards all cached entities and fails every pending operation. In
// flight responses land on an empty ledger and are ignored.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.queues {
		s.failQueueLocked(id, ErrNotAuthenticated)
	}
	s.lists = make(map[string]*dom.TodoList)
	s.listOrder = nil
	s.groups = make(map[string]*dom.Group)
	s.groupOrder = nil
	s.ledger = make(map[string]*pendingOp)
	s.queues = make(map[string][]*pendingOp)
}

// Hydrate replaces the working set with the server's view. Called after
// login or app start; pending operations do not survive it.
func (s *Store) Hydrate(ctx context.Context) error {
	if !s.sessions.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	lists, err := s.gateway.FetchLists(ctx)
	if err != nil {
		return fmt.Errorf("fetch lists: %w", err)
	}
	groups, err := s.gateway.FetchGroups(ctx)
	if err != nil {
		return fmt.Errorf("fetch groups: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Pending operations reference entities the refetch is about to replace;
	// their reconcile closures would resurrect stale pointers. Fail them, the
	// fetched state is the server's word on whatever they achieved.
	for id := range s.queues {
		s.failQueueLocked(id, ErrSuperseded)
	}
	s.lists = make(map[string]*dom.TodoList, len(lists))
	s.listOrder = s.listOrder[:0]
	for _, l := range lists {
		cp := l.Clone()
		s.lists[l.ID] = &cp
		s.listOrder = append(s.listOrder, l.ID)
	}
	s.groups = make(map[string]*dom.Group, len(groups))
	s.groupOrder = s.groupOrder[:0]
	for _, g := range groups {
		cp := g.Clone()
		s.groups[g.ID] = &cp
		s.groupOrder = append(s.groupOrder, g.ID)
	}
	return nil
}

// Lists returns the lists in insertion order, pending optimistic state
// included. The result is a deep copy.
func (s *Store) Lists() []dom.TodoList {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dom.TodoList, 0, len(s.listOrder))
	for _, id := range s.listOrder {
		out = append(out, s.lists[id].Clone())
	}
	return out
}

// Groups returns the groups in insertion order as a deep copy.
func (s *Store) Groups() []dom.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]dom.Group, 0, len(s.groupOrder))
	for _, id := range s.groupOrder {
		out = append(out, s.groups[id].Clone())
	}
	return out
}

// GetList returns a copy of one list.
func (s *Store) GetList(listID string) (dom.TodoList, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[listID]
	if !ok {
		return dom.TodoList{}, false
	}
	return l.Clone(), true
}

// GetListsByUser returns the lists userID may view.
func (s *Store) GetListsByUser(userID string) []dom.TodoList {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dom.TodoList
	for _, id := range s.listOrder {
		l := s.lists[id]
		if access.CanView(userID, l) {
			out = append(out, l.Clone())
		}
	}
	return out
}

// GetListsByGroup returns the lists attached to groupID.
func (s *Store) GetListsByGroup(groupID string) []dom.TodoList {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []dom.TodoList
	for _, id := range s.listOrder {
		l := s.lists[id]
		if l.GroupID == groupID {
			out = append(out, l.Clone())
		}
	}
	return out
}

// PendingCount reports how many operations await reconciliation.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

// replaceListLocked installs server truth for a list, preserving insertion
// order when the list already exists. Caller holds s.mu.
func (s *Store) replaceListLocked(l dom.TodoList) {
	cp := l.Clone()
	if _, ok := s.lists[l.ID]; !ok {
		s.listOrder = append(s.listOrder, l.ID)
	}
	s.lists[l.ID] = &cp
}

// removeListLocked drops a list from the working set. Caller holds s.mu.
func (s *Store) removeListLocked(listID string) {
	if _, ok := s.lists[listID]; !ok {
		return
	}
	delete(s.lists, listID)
	for i, id := range s.listOrder {
		if id == listID {
			s.listOrder = append(s.listOrder[:i], s.listOrder[i+1:]...)
			break
		}
	}
	for _, g := range s.groups {
		for i, id := range g.Lists {
			if id == listID {
				g.Lists = append(g.Lists[:i], g.Lists[i+1:]...)
				break
			}
		}
	}
}
