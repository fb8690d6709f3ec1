package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
)

const requestIDHeader = "X-Request-Id"

// TokenSource supplies the current access token. Empty string = no session.
type TokenSource func() string

// Client talks HTTP to the remote task-sync API. It implements Gateway and
// AuthAPI.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
}

// NewClient returns a Client for the API at baseURL (no trailing slash).
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		token:   func() string { return "" },
	}
}

// SetTokenSource wires the session store's token into authenticated requests.
// Must be called before any authenticated call; the app does this at startup.
func (c *Client) SetTokenSource(ts TokenSource) {
	if ts != nil {
		c.token = ts
	}
}

// Login exchanges credentials for a user and access token.
func (c *Client) Login(ctx context.Context, email, password string) (dom.User, string, error) {
	var data dto.LoginData
	err := c.do(ctx, http.MethodPost, "/auth/login", "", dto.LoginRequest{Email: email, Password: password}, "", &data)
	if err != nil {
		return dom.User{}, "", err
	}
	if data.Token == "" {
		return dom.User{}, "", &Error{Kind: ServerError, Op: "POST /auth/login", Message: "login response missing token"}
	}
	return data.User.ToDomain(), data.Token, nil
}

// Verify validates token against GET /session/verify.
func (c *Client) Verify(ctx context.Context, token string) (dom.User, error) {
	var data dto.LoginData
	if err := c.do(ctx, http.MethodGet, "/session/verify", token, nil, "", &data); err != nil {
		return dom.User{}, err
	}
	return data.User.ToDomain(), nil
}

// Revoke invalidates token remotely.
func (c *Client) Revoke(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", token, nil, "", nil)
}

// FetchLists returns every list visible to the current user.
func (c *Client) FetchLists(ctx context.Context) ([]dom.TodoList, error) {
	var payload []dto.ListPayload
	if err := c.do(ctx, http.MethodGet, "/lists", "", nil, "", &payload); err != nil {
		return nil, err
	}
	lists := make([]dom.TodoList, 0, len(payload))
	for _, p := range payload {
		lists = append(lists, p.ToDomain())
	}
	return lists, nil
}

// FetchList returns one list with its tasks and grants.
func (c *Client) FetchList(ctx context.Context, listID string) (dom.TodoList, error) {
	var payload dto.ListPayload
	if err := c.do(ctx, http.MethodGet, "/list/"+listID, "", nil, "", &payload); err != nil {
		return dom.TodoList{}, err
	}
	return payload.ToDomain(), nil
}

// FetchGroups returns the current user's groups.
func (c *Client) FetchGroups(ctx context.Context) ([]dom.Group, error) {
	var payload []dto.GroupPayload
	if err := c.do(ctx, http.MethodGet, "/groups", "", nil, "", &payload); err != nil {
		return nil, err
	}
	groups := make([]dom.Group, 0, len(payload))
	for _, p := range payload {
		groups = append(groups, p.ToDomain())
	}
	return groups, nil
}

// Send dispatches one mutation and decodes the server's view of the entity.
func (c *Client) Send(ctx context.Context, op Operation) (ServerEntity, error) {
	method, path, body, err := routeFor(op)
	if err != nil {
		return ServerEntity{}, err
	}

	switch op.Kind {
	case OpDeleteList, OpDeleteTask, OpDeleteGroup:
		return ServerEntity{}, c.do(ctx, method, path, "", body, op.ID, nil)
	case OpAddTask, OpEditTask, OpCompleteTask:
		var payload dto.TaskPayload
		if err := c.do(ctx, method, path, "", body, op.ID, &payload); err != nil {
			return ServerEntity{}, err
		}
		t := payload.ToDomain()
		return ServerEntity{Task: &t}, nil
	case OpCreateGroup, OpRenameGroup, OpAttachList, OpDetachList, OpGroupMember:
		var payload dto.GroupPayload
		if err := c.do(ctx, method, path, "", body, op.ID, &payload); err != nil {
			return ServerEntity{}, err
		}
		g := payload.ToDomain()
		return ServerEntity{Group: &g}, nil
	default:
		var payload dto.ListPayload
		if err := c.do(ctx, method, path, "", body, op.ID, &payload); err != nil {
			return ServerEntity{}, err
		}
		l := payload.ToDomain()
		return ServerEntity{List: &l}, nil
	}
}

// routeFor maps an Operation onto method, path and request body.
func routeFor(op Operation) (method, path string, body any, err error) {
	switch op.Kind {
	case OpCreateList:
		return http.MethodPost, "/list", op.CreateList, nil
	case OpRenameList:
		return http.MethodPatch, "/list/" + op.ListID, op.UpdateList, nil
	case OpDeleteList:
		return http.MethodDelete, "/list/" + op.ListID, nil, nil
	case OpAddTask:
		return http.MethodPost, "/list/" + op.ListID + "/todo", op.CreateTask, nil
	case OpEditTask, OpCompleteTask:
		return http.MethodPatch, "/list/" + op.ListID + "/todo/" + op.TaskID, op.UpdateTask, nil
	case OpDeleteTask:
		return http.MethodDelete, "/list/" + op.ListID + "/todo/" + op.TaskID, nil, nil
	case OpShareList:
		return http.MethodPatch, "/list/" + op.ListID + "/share", op.Share, nil
	case OpCreateGroup:
		return http.MethodPost, "/groups/new", op.CreateGroup, nil
	case OpRenameGroup:
		return http.MethodPatch, "/groups/" + op.GroupID, op.UpdateGroup, nil
	case OpDeleteGroup:
		return http.MethodDelete, "/groups/" + op.GroupID, nil, nil
	case OpAttachList:
		return http.MethodPost, "/groups/" + op.GroupID + "/list", op.AttachList, nil
	case OpDetachList:
		return http.MethodDelete, "/groups/" + op.GroupID + "/list/" + op.ListID, nil, nil
	case OpGroupMember:
		return http.MethodPatch, "/groups/" + op.GroupID + "/members", op.Share, nil
	}
	return "", "", nil, fmt.Errorf("sync: unknown operation kind %d", op.Kind)
}

// do performs one request/response exchange. token overrides the token
// source when non-empty (verify/revoke operate on an explicit token before
// it becomes the ambient session). out, when non-nil, receives the decoded
// envelope data.
func (c *Client) do(ctx context.Context, method, path, token string, body any, requestID string, out any) error {
	opName := method + " " + path

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: ServerError, Op: opName, Err: err}
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return &Error{Kind: NetworkFailure, Op: opName, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set(requestIDHeader, requestID)
	}
	if token == "" {
		token = c.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: NetworkFailure, Op: opName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: NetworkFailure, Op: opName, Err: err}
	}

	var env dto.Envelope
	if len(raw) > 0 {
		// A malformed envelope on a 2xx is a server fault; on errors the
		// status code alone is enough to classify.
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return &Error{Kind: ServerError, Op: opName, Err: err}
		}
	}

	if resp.StatusCode >= 400 {
		return &Error{Kind: kindForStatus(resp.StatusCode), Op: opName, Message: env.Message}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Kind: ServerError, Op: opName, Err: fmt.Errorf("decode data: %w", err)}
		}
	}
	return nil
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return Unauthorized
	case code == http.StatusNotFound:
		return NotFound
	// 403 means the server no longer agrees the user holds the role the
	// client checked locally: a concurrent grant change, handled as Conflict.
	case code == http.StatusConflict || code == http.StatusForbidden:
		return Conflict
	default:
		return ServerError
	}
}
