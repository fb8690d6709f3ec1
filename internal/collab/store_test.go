package collab

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/session"
	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// authStub satisfies the session store; every login succeeds as the
// configured user.
type authStub struct {
	user dom.User
}

func (a *authStub) Login(ctx context.Context, email, password string) (dom.User, string, error) {
	return a.user, "tok-" + a.user.ID, nil
}
func (a *authStub) Verify(ctx context.Context, token string) (dom.User, error) {
	return a.user, nil
}
func (a *authStub) Revoke(ctx context.Context, token string) error { return nil }

// deadAuth rejects every verification, simulating a token revoked under the
// user.
type deadAuth struct{ authStub }

func (a *deadAuth) Verify(ctx context.Context, token string) (dom.User, error) {
	return dom.User{}, &gw.Error{Kind: gw.Unauthorized, Op: "GET /session/verify"}
}

// fakeGateway scripts Send results and records dispatched operations.
type fakeGateway struct {
	mu      stdsync.Mutex
	sent    []gw.Operation
	nextID  int
	stub    func(op gw.Operation) (gw.ServerEntity, error)
	lists   []dom.TodoList
	groups  []dom.Group
	release chan struct{} // non-nil: Send blocks until released
}

func (f *fakeGateway) serverID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("srv-%s-%d", prefix, f.nextID)
}

// echo confirms any operation with plausible server-side state.
func (f *fakeGateway) echo(op gw.Operation) (gw.ServerEntity, error) {
	switch op.Kind {
	case gw.OpCreateList:
		now := time.Now().UTC()
		return gw.ServerEntity{List: &dom.TodoList{
			ID: f.serverID("list"), Title: op.CreateList.Name, CreatedAt: now, UpdatedAt: now,
		}}, nil
	case gw.OpAddTask:
		return gw.ServerEntity{Task: &dom.Task{
			ID: f.serverID("task"), Title: op.CreateTask.Task, CreatedAt: time.Now().UTC(),
		}}, nil
	case gw.OpCreateGroup:
		return gw.ServerEntity{Group: &dom.Group{
			ID: f.serverID("group"), Name: op.CreateGroup.Name, CreatedAt: time.Now().UTC(),
		}}, nil
	default:
		return gw.ServerEntity{}, nil
	}
}

func (f *fakeGateway) Send(ctx context.Context, op gw.Operation) (gw.ServerEntity, error) {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.sent = append(f.sent, op)
	stub := f.stub
	f.mu.Unlock()
	if stub != nil {
		return stub(op)
	}
	return f.echo(op)
}

func (f *fakeGateway) sentOps() []gw.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gw.Operation(nil), f.sent...)
}

func (f *fakeGateway) FetchLists(ctx context.Context) ([]dom.TodoList, error) {
	return f.lists, nil
}

func (f *fakeGateway) FetchList(ctx context.Context, listID string) (dom.TodoList, error) {
	for _, l := range f.lists {
		if l.ID == listID {
			return l, nil
		}
	}
	return dom.TodoList{}, &gw.Error{Kind: gw.NotFound, Op: "GET /list/" + listID}
}

func (f *fakeGateway) FetchGroups(ctx context.Context) ([]dom.Group, error) {
	return f.groups, nil
}

var (
	userAlice = dom.User{ID: "u-alice", Name: "Alice", Email: "alice@example.com"}
	userBob   = dom.User{ID: "u-bob", Name: "Bob", Email: "bob@example.com"}
)

// groceries is one shared list: alice owner, bob viewer, one task.
func groceries() dom.TodoList {
	return dom.TodoList{
		ID:      "list-groceries",
		Title:   "Groceries",
		OwnerID: userAlice.ID,
		Items: []dom.Task{
			{ID: "task-milk", Title: "Milk", CreatedAt: time.Now().UTC()},
		},
		Shared: []dom.SharedUser{
			{UserID: userAlice.ID, Name: "Alice", Email: "alice@example.com", Role: dom.RoleOwner},
			{UserID: userBob.ID, Name: "Bob", Email: "bob@example.com", Role: dom.RoleViewer},
		},
	}
}

func newHarness(t *testing.T, authAPI gw.AuthAPI, user dom.User, seed ...dom.TodoList) (*Store, *fakeGateway, *session.Store) {
	t.Helper()
	fake := &fakeGateway{lists: seed}
	sess := session.New(authAPI, filepath.Join(t.TempDir(), "session.json"), time.Hour)
	store := New(fake, sess)

	_, err := sess.Login(context.Background(), user.Email, "pw")
	require.NoError(t, err)
	require.NoError(t, store.Hydrate(context.Background()))
	return store, fake, sess
}

func await(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("mutation never resolved")
		return nil
	}
}

func TestAddTask_OptimisticApplyThenReconcile(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	task, ch, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "a dozen", nil)
	require.NoError(t, err)

	// Visible immediately, before any confirmation, with a temp id.
	l, ok := store.GetList("list-groceries")
	require.True(t, ok)
	require.Len(t, l.Items, 2)
	assert.Contains(t, task.ID, tempIDPrefix)
	assert.Equal(t, "Eggs", l.Items[1].Title)

	require.NoError(t, await(t, ch))

	// Reconciliation substitutes the server id and nothing user-visible.
	l, _ = store.GetList("list-groceries")
	require.Len(t, l.Items, 2)
	assert.Equal(t, "srv-task-1", l.Items[1].ID)
	assert.Equal(t, "Eggs", l.Items[1].Title)
	assert.Equal(t, "a dozen", l.Items[1].Notes)
	assert.Equal(t, 0, store.PendingCount())

	ops := fake.sentOps()
	require.Len(t, ops, 1)
	assert.Equal(t, gw.OpAddTask, ops[0].Kind)
	assert.NotEmpty(t, ops[0].ID)
}

func TestAddTask_ViewerDeniedSynchronously(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userBob}, userBob, groceries())

	_, ch, err := store.AddTask(context.Background(), "list-groceries", "Candy", "", nil)

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Nil(t, ch)
	assert.Empty(t, fake.sentOps(), "a denial must never reach the gateway")
	l, _ := store.GetList("list-groceries")
	assert.Len(t, l.Items, 1, "no optimistic state change on denial")
}

func TestAddTask_ValidationFailsFast(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	_, _, err := store.AddTask(context.Background(), "list-groceries", "   ", "", nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "task", verr.Field)
	assert.Empty(t, fake.sentOps())
	l, _ := store.GetList("list-groceries")
	assert.Len(t, l.Items, 1)
}

func TestAddTask_NetworkFailureRollsBack(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.NetworkFailure, Op: "POST"}
	}

	_, ch, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)

	err = await(t, ch)
	assert.True(t, gw.IsKind(err, gw.NetworkFailure))
	l, _ := store.GetList("list-groceries")
	require.Len(t, l.Items, 1, "rollback restores the pre-mutation state")
	assert.Equal(t, "Milk", l.Items[0].Title)
	assert.Equal(t, 0, store.PendingCount())
}

func TestEditTask_RollbackRestoresExactFields(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.ServerError, Op: "PATCH"}
	}

	title := "Oat milk"
	_, ch, err := store.EditTask(context.Background(), "list-groceries", "task-milk", TaskPatch{Title: &title})
	require.NoError(t, err)

	l, _ := store.GetList("list-groceries")
	assert.Equal(t, "Oat milk", l.Items[0].Title, "optimistic edit visible")

	require.Error(t, await(t, ch))
	l, _ = store.GetList("list-groceries")
	assert.Equal(t, "Milk", l.Items[0].Title)
}

func TestDeleteList_CascadesAndRollsBackWhole(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.NetworkFailure, Op: "DELETE"}
	}

	ch, err := store.DeleteList(context.Background(), "list-groceries")
	require.NoError(t, err)

	_, ok := store.GetList("list-groceries")
	assert.False(t, ok, "list and tasks gone optimistically")

	require.Error(t, await(t, ch))
	l, ok := store.GetList("list-groceries")
	require.True(t, ok, "rollback restores the list")
	require.Len(t, l.Items, 1, "cascade rollback restores tasks")
	assert.Equal(t, "Milk", l.Items[0].Title)
	assert.Len(t, l.Shared, 2)
}

func TestDeleteList_ViewerDenied(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userBob}, userBob, groceries())

	_, err := store.DeleteList(context.Background(), "list-groceries")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Empty(t, fake.sentOps())
}

func TestSameEntityMutationsDispatchInOrder(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.release = make(chan struct{})

	_, ch1, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)
	_, ch2, err := store.AddTask(context.Background(), "list-groceries", "Bread", "", nil)
	require.NoError(t, err)

	// Both applied locally at once, only the first in flight.
	l, _ := store.GetList("list-groceries")
	assert.Len(t, l.Items, 3)

	fake.release <- struct{}{}
	require.NoError(t, await(t, ch1))
	assert.Len(t, fake.sentOps(), 1, "second op waits for the first to reconcile")

	fake.release <- struct{}{}
	require.NoError(t, await(t, ch2))

	ops := fake.sentOps()
	require.Len(t, ops, 2)
	assert.Equal(t, "Eggs", ops[0].CreateTask.Task)
	assert.Equal(t, "Bread", ops[1].CreateTask.Task)
}

func TestCreateList_AdoptsServerIDsForQueuedOps(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)

	list, chList, err := store.CreateList(context.Background(), "Trip", "")
	require.NoError(t, err)
	assert.Contains(t, list.ID, tempIDPrefix)

	// Queued behind the create, still addressed by the temp id.
	_, chTask, err := store.AddTask(context.Background(), list.ID, "Pack socks", "", nil)
	require.NoError(t, err)

	require.NoError(t, await(t, chList))
	require.NoError(t, await(t, chTask))

	lists := store.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "srv-list-1", lists[0].ID, "temp list id substituted")
	require.Len(t, lists[0].Items, 1)
	assert.Equal(t, "srv-task-2", lists[0].Items[0].ID)

	ops := fake.sentOps()
	require.Len(t, ops, 2)
	assert.Equal(t, "srv-list-1", ops[1].ListID, "queued op retargeted to the server id")
}

func TestConflict_RefetchesInsteadOfRollingBack(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	serverTruth := groceries()
	serverTruth.Title = "Groceries (renamed remotely)"
	serverTruth.Items = append(serverTruth.Items, dom.Task{ID: "task-jam", Title: "Jam"})
	fake.lists = []dom.TodoList{serverTruth}
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.Conflict, Op: "PATCH"}
	}

	_, ch, err := store.RenameList(context.Background(), "list-groceries", "My groceries")
	require.NoError(t, err)

	err = await(t, ch)
	assert.True(t, gw.IsKind(err, gw.Conflict))

	l, ok := store.GetList("list-groceries")
	require.True(t, ok)
	assert.Equal(t, "Groceries (renamed remotely)", l.Title, "server truth installed, not a rollback")
	assert.Len(t, l.Items, 2)
	assert.Equal(t, 0, store.PendingCount())
}

func TestUnauthorized_EscalatesAndPurges(t *testing.T) {
	store, fake, sess := newHarness(t, &deadAuth{authStub{user: userAlice}}, userAlice, groceries())
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.Unauthorized, Op: "POST"}
	}

	_, ch, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)

	err = await(t, ch)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.False(t, sess.IsAuthenticated(), "dead token forces logout")
	assert.Empty(t, store.Lists(), "purge cascades from the session store")
}

func TestLogout_PurgesEverything(t *testing.T) {
	store, fake, sess := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.release = make(chan struct{})

	_, ch, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)

	require.NoError(t, sess.Logout(context.Background()))

	assert.ErrorIs(t, await(t, ch), ErrNotAuthenticated)
	assert.Empty(t, store.Lists())
	assert.Empty(t, store.Groups())
	assert.Equal(t, 0, store.PendingCount())

	// The in-flight response lands on an empty ledger and is ignored.
	close(fake.release)
	assert.Eventually(t, func() bool { return len(store.Lists()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSecondLogin_NeverSeesFirstUsersData(t *testing.T) {
	store, fake, sess := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	require.NotEmpty(t, store.Lists())

	require.NoError(t, sess.Logout(context.Background()))
	assert.Empty(t, store.Lists())

	// Same device, different account.
	fake.lists = nil
	sessB := session.New(&authStub{user: userBob}, filepath.Join(t.TempDir(), "session.json"), time.Hour)
	storeB := New(fake, sessB)
	_, err := sessB.Login(context.Background(), userBob.Email, "pw")
	require.NoError(t, err)
	require.NoError(t, storeB.Hydrate(context.Background()))

	assert.Empty(t, storeB.Lists(), "no bleed-through between identities")
}

func TestRollback_NonPendingOpIsNoop(t *testing.T) {
	store, _, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	_, ch, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)
	require.NoError(t, await(t, ch))

	before := store.Lists()
	store.mu.Lock()
	store.rollbackLocked("no-such-op", errors.New("boom"))
	store.mu.Unlock()
	assert.Equal(t, before, store.Lists())
}

func TestUpdateSharing_OwnerGrantImmutable(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	_, err := store.UpdateSharing(context.Background(), "list-groceries", dom.SharedUser{
		UserID: userAlice.ID, Role: dom.RoleViewer,
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, fake.sentOps())
}

func TestUpdateSharing_UpsertsSingleGrant(t *testing.T) {
	store, _, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	ch, err := store.UpdateSharing(context.Background(), "list-groceries", dom.SharedUser{
		UserID: userBob.ID, Name: "Bob", Email: "bob@example.com", Role: dom.RoleContributor,
	})
	require.NoError(t, err)
	require.NoError(t, await(t, ch))

	l, _ := store.GetList("list-groceries")
	grants := 0
	for _, g := range l.Shared {
		if g.UserID == userBob.ID {
			grants++
			assert.Equal(t, dom.RoleContributor, g.Role)
		}
	}
	assert.Equal(t, 1, grants, "exactly one grant per (user, list)")
}

func TestQueries_ReflectPendingStateWithoutNetwork(t *testing.T) {
	personal := dom.TodoList{ID: "list-mine", Title: "Mine", OwnerID: userAlice.ID,
		Shared: []dom.SharedUser{{UserID: userAlice.ID, Role: dom.RoleOwner}}}
	grouped := groceries()
	grouped.GroupID = "grp-7"
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, personal, grouped)
	fake.release = make(chan struct{}) // keep the mutation pending

	_, _, err := store.AddTask(context.Background(), "list-mine", "Water plants", "", nil)
	require.NoError(t, err)

	sentBefore := len(fake.sentOps())
	byUser := store.GetListsByUser(userAlice.ID)
	require.Len(t, byUser, 2)
	for _, l := range byUser {
		if l.ID == "list-mine" {
			assert.Len(t, l.Items, 1, "reads include pending optimistic state")
		}
	}
	byGroup := store.GetListsByGroup("grp-7")
	require.Len(t, byGroup, 1)
	assert.Equal(t, "list-groceries", byGroup[0].ID)
	assert.Equal(t, sentBefore, len(fake.sentOps()), "queries are pure reads")

	close(fake.release)
}

// family is one group owned by alice with bob as a contributor.
func family() dom.Group {
	return dom.Group{
		ID:      "grp-family",
		Name:    "Family",
		OwnerID: userAlice.ID,
		Lists:   []string{"list-groceries"},
		Members: []dom.SharedUser{
			{UserID: userAlice.ID, Name: "Alice", Email: "alice@example.com", Role: dom.RoleOwner},
			{UserID: userBob.ID, Name: "Bob", Email: "bob@example.com", Role: dom.RoleContributor},
		},
	}
}

// seedGroup re-hydrates the store with server-side state that includes a
// group, which newHarness cannot seed directly.
func seedGroup(t *testing.T, store *Store, fake *fakeGateway, g dom.Group, lists ...dom.TodoList) {
	t.Helper()
	fake.groups = []dom.Group{g}
	fake.lists = lists
	require.NoError(t, store.Hydrate(context.Background()))
}

func TestHydrate_SupersedesPendingOperations(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)
	fake.release = make(chan struct{})

	list, ch, err := store.CreateList(context.Background(), "Trip", "")
	require.NoError(t, err)

	// A full refresh arrives while the create is still in flight.
	fake.lists = []dom.TodoList{{
		ID: "srv-refresh", Title: "From server", OwnerID: userAlice.ID,
		Shared: []dom.SharedUser{{UserID: userAlice.ID, Role: dom.RoleOwner}},
	}}
	require.NoError(t, store.Hydrate(context.Background()))

	assert.ErrorIs(t, await(t, ch), ErrSuperseded)
	assert.Equal(t, 0, store.PendingCount())

	lists := store.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "srv-refresh", lists[0].ID)
	_, ok := store.GetList(list.ID)
	assert.False(t, ok)

	// The late response lands on an empty ledger and must not resurrect
	// the temp list behind the refreshed working set.
	close(fake.release)
	assert.Eventually(t, func() bool { return len(fake.sentOps()) == 1 }, time.Second, 10*time.Millisecond)
	lists = store.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, "srv-refresh", lists[0].ID)
	_, ok = store.GetList(list.ID)
	assert.False(t, ok, "GetList and Lists stay consistent after the refresh")
}

func TestRollback_FailsQueuedOpsLocally(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())
	fake.release = make(chan struct{})
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.NetworkFailure, Op: "POST"}
	}

	_, ch1, err := store.AddTask(context.Background(), "list-groceries", "Eggs", "", nil)
	require.NoError(t, err)
	_, ch2, err := store.AddTask(context.Background(), "list-groceries", "Bread", "", nil)
	require.NoError(t, err)

	fake.release <- struct{}{}
	err1 := await(t, ch1)
	assert.True(t, gw.IsKind(err1, gw.NetworkFailure))
	assert.Equal(t, err1, await(t, ch2), "the whole queue fails with the head's cause")

	l, _ := store.GetList("list-groceries")
	require.Len(t, l.Items, 1, "both optimistic tasks rolled back")
	assert.Equal(t, "Milk", l.Items[0].Title)
	assert.Len(t, fake.sentOps(), 1, "a queued op never dispatches after its base rolled back")
	assert.Equal(t, 0, store.PendingCount())
}

func TestEditTask_DueDateClearedOnlyWhenSet(t *testing.T) {
	seed := groceries()
	due := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	seed.Items[0].DueDate = &due
	store, _, _ := newHarness(t, &authStub{user: userAlice}, userAlice, seed)

	// A patch that never mentions the due date leaves it alone.
	title := "Oat milk"
	_, ch, err := store.EditTask(context.Background(), "list-groceries", "task-milk", TaskPatch{Title: &title})
	require.NoError(t, err)
	require.NoError(t, await(t, ch))
	l, _ := store.GetList("list-groceries")
	require.NotNil(t, l.Items[0].DueDate)

	// SetDueDate with a nil date clears it.
	task, ch, err := store.EditTask(context.Background(), "list-groceries", "task-milk", TaskPatch{SetDueDate: true})
	require.NoError(t, err)
	assert.Nil(t, task.DueDate)
	require.NoError(t, await(t, ch))
	l, _ = store.GetList("list-groceries")
	assert.Nil(t, l.Items[0].DueDate)
	assert.Equal(t, "Oat milk", l.Items[0].Title, "earlier edit survives the clear")
}

func TestRenameGroup_RollsBackOnFailure(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)
	seedGroup(t, store, fake, family())

	g, ch, err := store.RenameGroup(context.Background(), "grp-family", "Household")
	require.NoError(t, err)
	assert.Equal(t, "Household", g.Name, "rename visible immediately")
	require.NoError(t, await(t, ch))

	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.ServerError, Op: "PATCH"}
	}
	_, ch, err = store.RenameGroup(context.Background(), "grp-family", "Chaos")
	require.NoError(t, err)
	require.Error(t, await(t, ch))

	groups := store.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "Household", groups[0].Name, "rollback restores the prior name")
}

func TestDeleteGroup_DetachesListsAndRollsBackWhole(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)
	grouped := groceries()
	grouped.GroupID = "grp-family"
	seedGroup(t, store, fake, family(), grouped)
	fake.stub = func(op gw.Operation) (gw.ServerEntity, error) {
		return gw.ServerEntity{}, &gw.Error{Kind: gw.NetworkFailure, Op: "DELETE"}
	}

	ch, err := store.DeleteGroup(context.Background(), "grp-family")
	require.NoError(t, err)

	// Optimistic: group gone, member list survives detached.
	assert.Empty(t, store.Groups())
	l, ok := store.GetList("list-groceries")
	require.True(t, ok)
	assert.Empty(t, l.GroupID)

	require.Error(t, await(t, ch))
	groups := store.Groups()
	require.Len(t, groups, 1, "rollback restores the group")
	assert.Equal(t, []string{"list-groceries"}, groups[0].Lists)
	l, _ = store.GetList("list-groceries")
	assert.Equal(t, "grp-family", l.GroupID, "rollback reattaches the list")

	fake.stub = nil
	ch, err = store.DeleteGroup(context.Background(), "grp-family")
	require.NoError(t, err)
	require.NoError(t, await(t, ch))
	assert.Empty(t, store.Groups())
	l, _ = store.GetList("list-groceries")
	assert.Empty(t, l.GroupID)
}

func TestRemoveListFromGroup_KeepsListAsPersonal(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)
	grouped := groceries()
	grouped.GroupID = "grp-family"
	seedGroup(t, store, fake, family(), grouped)

	ch, err := store.RemoveListFromGroup(context.Background(), "grp-family", "list-groceries")
	require.NoError(t, err)
	require.NoError(t, await(t, ch))

	groups := store.Groups()
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].Lists)
	l, ok := store.GetList("list-groceries")
	require.True(t, ok, "the list itself survives")
	assert.Empty(t, l.GroupID)

	_, err = store.RemoveListFromGroup(context.Background(), "grp-family", "list-groceries")
	assert.ErrorIs(t, err, ErrNotFound, "detaching an unattached list")

	ops := fake.sentOps()
	require.Len(t, ops, 1)
	assert.Equal(t, gw.OpDetachList, ops[0].Kind)
	assert.Equal(t, "grp-family", ops[0].GroupID)
	assert.Equal(t, "list-groceries", ops[0].ListID)
}

func TestGroupMembers_UpsertAndRemove(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice)
	seedGroup(t, store, fake, family())

	// Role change replaces the existing membership in place.
	ch, err := store.UpdateGroupMember(context.Background(), "grp-family", dom.SharedUser{
		UserID: userBob.ID, Name: "Bob", Email: "bob@example.com", Role: dom.RoleViewer,
	})
	require.NoError(t, err)
	require.NoError(t, await(t, ch))
	g := store.Groups()[0]
	grants := 0
	for _, m := range g.Members {
		if m.UserID == userBob.ID {
			grants++
			assert.Equal(t, dom.RoleViewer, m.Role)
		}
	}
	assert.Equal(t, 1, grants, "exactly one membership per user")

	// A new user appends.
	ch, err = store.UpdateGroupMember(context.Background(), "grp-family", dom.SharedUser{
		UserID: "u-carol", Name: "Carol", Email: "carol@example.com", Role: dom.RoleContributor,
	})
	require.NoError(t, err)
	require.NoError(t, await(t, ch))
	assert.Len(t, store.Groups()[0].Members, 3)

	// The owner's membership is immutable in both directions.
	var verr *ValidationError
	_, err = store.UpdateGroupMember(context.Background(), "grp-family", dom.SharedUser{
		UserID: userAlice.ID, Role: dom.RoleViewer,
	})
	require.ErrorAs(t, err, &verr)
	_, err = store.RemoveGroupMember(context.Background(), "grp-family", userAlice.ID)
	require.ErrorAs(t, err, &verr)

	ch, err = store.RemoveGroupMember(context.Background(), "grp-family", userBob.ID)
	require.NoError(t, err)
	require.NoError(t, await(t, ch))
	g = store.Groups()[0]
	require.Len(t, g.Members, 2)
	for _, m := range g.Members {
		assert.NotEqual(t, userBob.ID, m.UserID)
	}

	_, err = store.RemoveGroupMember(context.Background(), "grp-family", userBob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroupMutations_NonOwnerDenied(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userBob}, userBob)
	grouped := groceries()
	grouped.GroupID = "grp-family"
	seedGroup(t, store, fake, family(), grouped)

	_, _, err := store.RenameGroup(context.Background(), "grp-family", "Mine now")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = store.DeleteGroup(context.Background(), "grp-family")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = store.RemoveListFromGroup(context.Background(), "grp-family", "list-groceries")
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = store.UpdateGroupMember(context.Background(), "grp-family", dom.SharedUser{
		UserID: "u-carol", Role: dom.RoleViewer,
	})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = store.RemoveGroupMember(context.Background(), "grp-family", userAlice.ID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Empty(t, fake.sentOps(), "a denial must never reach the gateway")
}

func TestCreateGroup_ThenAttachList(t *testing.T) {
	store, fake, _ := newHarness(t, &authStub{user: userAlice}, userAlice, groceries())

	group, chG, err := store.CreateGroup(context.Background(), "Family")
	require.NoError(t, err)
	chA, err := store.AddListToGroup(context.Background(), group.ID, "list-groceries")
	require.NoError(t, err)

	require.NoError(t, await(t, chG))
	require.NoError(t, await(t, chA))

	groups := store.Groups()
	require.Len(t, groups, 1)
	assert.Equal(t, "srv-group-1", groups[0].ID)
	assert.Equal(t, []string{"list-groceries"}, groups[0].Lists)

	l, _ := store.GetList("list-groceries")
	assert.Equal(t, "srv-group-1", l.GroupID)

	ops := fake.sentOps()
	require.Len(t, ops, 2)
	assert.Equal(t, "srv-group-1", ops[1].GroupID, "attach retargeted to server group id")
}
