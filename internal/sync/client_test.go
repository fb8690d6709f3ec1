package sync_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thompsonmanda08/task-sync-sub001/internal/apitest"
	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

func newClient(t *testing.T) (*gw.Client, *apitest.Server) {
	t.Helper()
	api := apitest.New()
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return gw.NewClient(srv.URL, 5*time.Second), api
}

// loggedIn seeds an account, logs it in and wires the token into the client.
func loggedIn(t *testing.T, client *gw.Client, api *apitest.Server, name, email string) dom.User {
	t.Helper()
	api.SeedUser(name, email, "hunter22")
	user, token, err := client.Login(context.Background(), email, "hunter22")
	require.NoError(t, err)
	client.SetTokenSource(func() string { return token })
	return user
}

func TestLogin(t *testing.T) {
	client, api := newClient(t)
	api.SeedUser("Dana", "dana@example.com", "hunter22")

	user, token, err := client.Login(context.Background(), "dana@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "Dana", user.Name)
	assert.Equal(t, "dana@example.com", user.Email)
	assert.NotEmpty(t, user.ID)
	assert.NotEmpty(t, token)

	_, _, err = client.Login(context.Background(), "dana@example.com", "wrong")
	assert.True(t, gw.IsKind(err, gw.Unauthorized))

	_, _, err = client.Login(context.Background(), "nobody@example.com", "hunter22")
	assert.True(t, gw.IsKind(err, gw.Unauthorized))
}

func TestVerifyAndRevoke(t *testing.T) {
	client, api := newClient(t)
	api.SeedUser("Dana", "dana@example.com", "hunter22")
	_, token, err := client.Login(context.Background(), "dana@example.com", "hunter22")
	require.NoError(t, err)

	user, err := client.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "Dana", user.Name)

	require.NoError(t, client.Revoke(context.Background(), token))

	_, err = client.Verify(context.Background(), token)
	assert.True(t, gw.IsKind(err, gw.Unauthorized), "revoked token no longer verifies")
}

func TestFetchLists_MapsPayload(t *testing.T) {
	client, api := newClient(t)
	user := loggedIn(t, client, api, "Dana", "dana@example.com")

	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	api.SeedList(dto.ListPayload{
		ID:      "list-1",
		Name:    "Groceries",
		OwnerID: user.ID,
		TodoItems: []dto.TaskPayload{
			{ID: "task-1", Task: "Milk", Description: "two liters", DueDate: &due},
		},
		SharedWith: []dto.SharedUserPayload{
			{UserID: user.ID, Name: "Dana", Email: "dana@example.com", Role: "owner"},
		},
	})

	lists, err := client.FetchLists(context.Background())
	require.NoError(t, err)
	require.Len(t, lists, 1)
	l := lists[0]
	assert.Equal(t, "Groceries", l.Title)
	assert.Equal(t, user.ID, l.OwnerID)
	require.Len(t, l.Items, 1)
	assert.Equal(t, "Milk", l.Items[0].Title)
	assert.Equal(t, "two liters", l.Items[0].Notes)
	require.NotNil(t, l.Items[0].DueDate)
	assert.True(t, l.Items[0].DueDate.Equal(due))
	require.Len(t, l.Shared, 1)
	assert.Equal(t, dom.RoleOwner, l.Shared[0].Role)
}

func TestSend_TaskLifecycle(t *testing.T) {
	client, api := newClient(t)
	user := loggedIn(t, client, api, "Dana", "dana@example.com")

	ent, err := client.Send(context.Background(), gw.Operation{
		ID:         "op-1",
		Kind:       gw.OpCreateList,
		CreateList: &dto.CreateListRequest{Name: "Chores"},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.List)
	listID := ent.List.ID
	assert.Equal(t, "Chores", ent.List.Title)
	assert.Equal(t, user.ID, ent.List.OwnerID)

	ent, err = client.Send(context.Background(), gw.Operation{
		ID:         "op-2",
		Kind:       gw.OpAddTask,
		ListID:     listID,
		CreateTask: &dto.CreateTaskRequest{Task: "Vacuum", Description: "hallway too"},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Task)
	taskID := ent.Task.ID
	assert.Equal(t, "Vacuum", ent.Task.Title)

	done := true
	ent, err = client.Send(context.Background(), gw.Operation{
		ID:         "op-3",
		Kind:       gw.OpCompleteTask,
		ListID:     listID,
		TaskID:     taskID,
		UpdateTask: &dto.UpdateTaskRequest{IsCompleted: &done},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Task)
	assert.True(t, ent.Task.Completed)

	_, err = client.Send(context.Background(), gw.Operation{
		ID: "op-4", Kind: gw.OpDeleteTask, ListID: listID, TaskID: taskID,
	})
	require.NoError(t, err)

	fetched, err := client.FetchList(context.Background(), listID)
	require.NoError(t, err)
	assert.Empty(t, fetched.Items)
}

func TestSend_DeleteList(t *testing.T) {
	client, api := newClient(t)
	user := loggedIn(t, client, api, "Dana", "dana@example.com")
	api.SeedList(dto.ListPayload{
		ID: "list-1", Name: "Old", OwnerID: user.ID,
		SharedWith: []dto.SharedUserPayload{{UserID: user.ID, Role: "owner"}},
	})

	_, err := client.Send(context.Background(), gw.Operation{
		ID: "op-1", Kind: gw.OpDeleteList, ListID: "list-1",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, api.ListCount())

	_, err = client.FetchList(context.Background(), "list-1")
	assert.True(t, gw.IsKind(err, gw.NotFound))
}

func TestSend_OwnerGrantConflict(t *testing.T) {
	client, api := newClient(t)
	user := loggedIn(t, client, api, "Dana", "dana@example.com")
	api.SeedList(dto.ListPayload{
		ID: "list-1", Name: "Groceries", OwnerID: user.ID,
		SharedWith: []dto.SharedUserPayload{{UserID: user.ID, Role: "owner"}},
	})

	_, err := client.Send(context.Background(), gw.Operation{
		ID:     "op-1",
		Kind:   gw.OpShareList,
		ListID: "list-1",
		Share:  &dto.ShareRequest{UserID: user.ID, Role: "viewer"},
	})
	assert.True(t, gw.IsKind(err, gw.Conflict))
}

func TestSend_GroupLifecycle(t *testing.T) {
	client, api := newClient(t)
	user := loggedIn(t, client, api, "Dana", "dana@example.com")
	api.SeedList(dto.ListPayload{
		ID: "list-1", Name: "Groceries", OwnerID: user.ID,
		SharedWith: []dto.SharedUserPayload{{UserID: user.ID, Role: "owner"}},
	})

	ent, err := client.Send(context.Background(), gw.Operation{
		ID:          "op-1",
		Kind:        gw.OpCreateGroup,
		CreateGroup: &dto.CreateGroupRequest{Name: "Family"},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Group)
	groupID := ent.Group.ID

	ent, err = client.Send(context.Background(), gw.Operation{
		ID:         "op-2",
		Kind:       gw.OpAttachList,
		GroupID:    groupID,
		AttachList: &dto.AttachListRequest{ListID: "list-1"},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Group)
	assert.Equal(t, []string{"list-1"}, ent.Group.Lists)

	name := "Household"
	ent, err = client.Send(context.Background(), gw.Operation{
		ID:          "op-3",
		Kind:        gw.OpRenameGroup,
		GroupID:     groupID,
		UpdateGroup: &dto.UpdateGroupRequest{Name: &name},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Group)
	assert.Equal(t, "Household", ent.Group.Name)

	erinID := api.SeedUser("Erin", "erin@example.com", "hunter22")
	ent, err = client.Send(context.Background(), gw.Operation{
		ID:      "op-4",
		Kind:    gw.OpGroupMember,
		GroupID: groupID,
		Share:   &dto.ShareRequest{UserID: erinID, Role: "viewer"},
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Group)
	require.Len(t, ent.Group.Members, 2, "owner membership plus the new grant")
	assert.Equal(t, "Erin", ent.Group.Members[1].Name)
	assert.Equal(t, dom.RoleViewer, ent.Group.Members[1].Role)

	_, err = client.Send(context.Background(), gw.Operation{
		ID:      "op-5",
		Kind:    gw.OpGroupMember,
		GroupID: groupID,
		Share:   &dto.ShareRequest{UserID: user.ID, Role: "viewer"},
	})
	assert.True(t, gw.IsKind(err, gw.Conflict), "owner membership is immutable")

	_, err = client.Send(context.Background(), gw.Operation{
		ID:      "op-6",
		Kind:    gw.OpGroupMember,
		GroupID: groupID,
		Share:   &dto.ShareRequest{UserID: erinID, Remove: true},
	})
	require.NoError(t, err)

	ent, err = client.Send(context.Background(), gw.Operation{
		ID:      "op-7",
		Kind:    gw.OpDetachList,
		GroupID: groupID,
		ListID:  "list-1",
	})
	require.NoError(t, err)
	require.NotNil(t, ent.Group)
	assert.Empty(t, ent.Group.Lists)

	groups, err := client.FetchGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "Household", groups[0].Name)
	require.Len(t, groups[0].Members, 1, "only the owner remains")
	assert.Equal(t, dom.RoleOwner, groups[0].Members[0].Role)

	_, err = client.Send(context.Background(), gw.Operation{
		ID: "op-8", Kind: gw.OpDeleteGroup, GroupID: groupID,
	})
	require.NoError(t, err)
	groups, err = client.FetchGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestErrorKinds_FromStatusCodes(t *testing.T) {
	client, api := newClient(t)
	loggedIn(t, client, api, "Dana", "dana@example.com")

	cases := []struct {
		status int
		kind   gw.ErrorKind
	}{
		{http.StatusUnauthorized, gw.Unauthorized},
		{http.StatusNotFound, gw.NotFound},
		{http.StatusConflict, gw.Conflict},
		{http.StatusForbidden, gw.Conflict},
		{http.StatusInternalServerError, gw.ServerError},
		{http.StatusBadGateway, gw.ServerError},
	}
	for _, tc := range cases {
		api.FailNext(tc.status)
		_, err := client.FetchLists(context.Background())
		require.Error(t, err)
		assert.True(t, gw.IsKind(err, tc.kind), "status %d should map to %s", tc.status, tc.kind)
	}
}

func TestNetworkFailure(t *testing.T) {
	api := apitest.New()
	srv := httptest.NewServer(api.Handler())
	client := gw.NewClient(srv.URL, time.Second)
	srv.Close()

	_, err := client.FetchLists(context.Background())
	assert.True(t, gw.IsKind(err, gw.NetworkFailure))

	kind, ok := gw.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gw.NetworkFailure, kind)
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	client, _ := newClient(t)

	_, err := client.FetchLists(context.Background())
	assert.True(t, gw.IsKind(err, gw.Unauthorized))
}
