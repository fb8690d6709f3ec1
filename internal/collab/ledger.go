package collab

import (
	"context"

	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// pendingOp is one optimistic mutation awaiting its server response: the
// dispatched operation, the inverse that undoes its local apply, and hooks
// run under the store lock when the response arrives.
type pendingOp struct {
	entityID string // FIFO chain key: list id or group id
	op       gw.Operation
	ctx      context.Context

	// inverse replays the exact local mutation backwards. Runs under the
	// store lock, only while the op is still in the ledger.
	inverse func()
	// reconcile merges the confirmed server entity: id substitution and
	// server-computed fields only, never client-supplied values.
	reconcile func(ent gw.ServerEntity)

	done chan error
}

// record puts p in the ledger and on its entity's FIFO queue, dispatching
// immediately when the queue was idle. Caller holds s.mu.
func (s *Store) record(p *pendingOp) <-chan error {
	s.ledger[p.op.ID] = p
	q := append(s.queues[p.entityID], p)
	s.queues[p.entityID] = q
	if len(q) == 1 {
		go s.dispatch(p)
	}
	return p.done
}

// dispatch sends p through the gateway and applies the outcome. Runs off the
// caller's goroutine; the caller observed the optimistic state long ago.
func (s *Store) dispatch(p *pendingOp) {
	// The mutation caller's context may die as soon as the optimistic
	// result is rendered; the in-flight request must not die with it.
	ctx := context.WithoutCancel(p.ctx)
	ent, err := s.gateway.Send(ctx, p.op)

	if err != nil && gw.IsKind(err, gw.Unauthorized) {
		// Token may have expired under the user. Re-verify first: if the
		// session is gone the purge cascade empties the store and the
		// response below lands on an empty ledger.
		s.sessions.HandleUnauthorized(ctx)
	}

	if err != nil && gw.IsKind(err, gw.Conflict) {
		s.resolveConflict(ctx, p, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger[p.op.ID] != p {
		// Superseded by purge or an earlier rollback. The response is
		// ignored; whoever removed the op already resolved its channel.
		return
	}

	if err != nil {
		s.rollbackLocked(p.op.ID, err)
		return
	}
	if p.reconcile != nil {
		p.reconcile(ent)
	}
	s.finishLocked(p, nil)
}

// resolveConflict replaces local state with server truth for the entity
// instead of rolling back: local and remote diverged in ways an inverse
// patch cannot express.
func (s *Store) resolveConflict(ctx context.Context, p *pendingOp, cause error) {
	if isGroupOp(p.op.Kind) {
		// Group divergence has no single-entity refetch endpoint; the next
		// Hydrate restores server truth.
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ledger[p.op.ID] != p {
			return
		}
		s.failQueueLocked(p.entityID, cause)
		return
	}

	fetched, fetchErr := s.gateway.FetchList(ctx, p.entityID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger[p.op.ID] != p {
		return
	}

	if fetchErr == nil {
		s.replaceListLocked(fetched)
	} else if gw.IsKind(fetchErr, gw.NotFound) {
		s.removeListLocked(p.entityID)
	}
	// Anything queued behind p was applied on top of state that no longer
	// exists; fail those ops without inverse replay, the refetch already
	// installed server truth.
	s.failQueueLocked(p.entityID, cause)
}

// finishLocked retires p: drops it from the ledger, pops its queue and
// dispatches the next op for the same entity. Caller holds s.mu.
func (s *Store) finishLocked(p *pendingOp, result error) {
	delete(s.ledger, p.op.ID)
	q := s.queues[p.entityID]
	if len(q) > 0 && q[0] == p {
		q = q[1:]
	}
	if len(q) == 0 {
		delete(s.queues, p.entityID)
	} else {
		s.queues[p.entityID] = q
		go s.dispatch(q[0])
	}
	p.done <- result
}

// failQueueLocked fails every pending op chained on entityID. Caller holds s.mu.
func (s *Store) failQueueLocked(entityID string, cause error) {
	for _, q := range s.queues[entityID] {
		delete(s.ledger, q.op.ID)
		q.done <- cause
	}
	delete(s.queues, entityID)
}

// rollbackLocked undoes opID and everything queued behind it on the same
// entity: the queued ops were applied on top of the state being reverted,
// and dispatching them anyway would ship ids the server never issued.
// Inverses replay newest-first. Rolling back an op that is not in the ledger
// is a no-op. Caller holds s.mu.
func (s *Store) rollbackLocked(opID string, cause error) {
	p, ok := s.ledger[opID]
	if !ok {
		return
	}
	q := s.queues[p.entityID]
	for i := len(q) - 1; i >= 0; i-- {
		q[i].inverse()
	}
	s.failQueueLocked(p.entityID, cause)
}

// isGroupOp reports whether the operation's FIFO entity is a group.
func isGroupOp(k gw.OpKind) bool {
	switch k {
	case gw.OpCreateGroup, gw.OpRenameGroup, gw.OpDeleteGroup,
		gw.OpAttachList, gw.OpDetachList, gw.OpGroupMember:
		return true
	}
	return false
}

// retargetPendingLocked rewrites entity ids inside queued operations after a
// create op reconciled a temporary id to the server-assigned one. Caller
// holds s.mu.
func (s *Store) retargetPendingLocked(entityID, oldID, newID string) {
	for _, p := range s.queues[entityID] {
		if p.op.ListID == oldID {
			p.op.ListID = newID
		}
		if p.op.TaskID == oldID {
			p.op.TaskID = newID
		}
		if p.op.GroupID == oldID {
			p.op.GroupID = newID
		}
	}
}

// rekeyQueueLocked moves a FIFO chain to a new entity id (list created with
// a temp id now has its server id). Caller holds s.mu.
func (s *Store) rekeyQueueLocked(oldID, newID string) {
	q, ok := s.queues[oldID]
	if !ok {
		return
	}
	delete(s.queues, oldID)
	for _, p := range q {
		p.entityID = newID
	}
	s.queues[newID] = q
}
