// Package apitest is an in-memory stand-in for the remote task-sync API,
// used by integration-style tests. It speaks the same envelope and routes as
// the production server and enforces the same role rules, so the client can
// be exercised end to end without a backend.
package apitest

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
)

type user struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
}

// Server holds all remote state behind one lock. Zero value is not usable;
// call New.
type Server struct {
	mu      stdsync.Mutex
	users   map[string]*user  // id -> user
	byEmail map[string]string // email -> id
	tokens  map[string]string // token -> user id
	lists   map[string]*dto.ListPayload
	groups  map[string]*dto.GroupPayload

	failNext []int // queued status codes for fault injection

	engine *gin.Engine
}

// New returns a Server with its routes registered.
func New() *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		users:   make(map[string]*user),
		byEmail: make(map[string]string),
		tokens:  make(map[string]string),
		lists:   make(map[string]*dto.ListPayload),
		groups:  make(map[string]*dto.GroupPayload),
	}

	r := gin.New()
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS", "HEAD"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	s.register(r)
	s.engine = r
	return s
}

// Handler returns the http.Handler for httptest.NewServer.
func (s *Server) Handler() http.Handler { return s.engine }

// SeedUser creates an account and returns its id.
func (s *Server) SeedUser(name, email, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &user{ID: uuid.NewString(), Name: name, Email: email, PasswordHash: string(hash)}
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u.ID
}

// SeedList installs a list verbatim, grants included.
func (s *Server) SeedList(l dto.ListPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := l
	s.lists[l.ID] = &cp
}

// SetGrant adds or replaces a grant on a seeded list.
func (s *Server) SetGrant(listID string, grant dto.SharedUserPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.lists[listID]
	for i := range l.SharedWith {
		if l.SharedWith[i].UserID == grant.UserID {
			l.SharedWith[i] = grant
			return
		}
	}
	l.SharedWith = append(l.SharedWith, grant)
}

// FailNext makes the next authenticated request fail with the given HTTP
// status. Calls queue up in order.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = append(s.failNext, status)
}

// RevokeAllTokens invalidates every issued token, simulating server-side
// expiry under the user.
func (s *Server) RevokeAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// ListCount reports how many lists the server holds.
func (s *Server) ListCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lists)
}

func (s *Server) register(r *gin.Engine) {
	r.POST("/auth/login", s.handleLogin)

	private := r.Group("", s.requireBearer)
	private.POST("/auth/logout", s.handleLogout)
	private.GET("/session/verify", s.handleVerify)

	private.GET("/lists", s.handleGetLists)
	private.POST("/list", s.handleCreateList)
	private.GET("/list/:list_id", s.handleGetList)
	private.PATCH("/list/:list_id", s.handleUpdateList)
	private.DELETE("/list/:list_id", s.handleDeleteList)
	private.PATCH("/list/:list_id/share", s.handleShare)

	private.POST("/list/:list_id/todo", s.handleCreateTask)
	private.PATCH("/list/:list_id/todo/:task_id", s.handleUpdateTask)
	private.DELETE("/list/:list_id/todo/:task_id", s.handleDeleteTask)

	private.GET("/groups", s.handleGetGroups)
	private.POST("/groups/new", s.handleCreateGroup)
	private.PATCH("/groups/:group_id", s.handleUpdateGroup)
	private.DELETE("/groups/:group_id", s.handleDeleteGroup)
	private.PATCH("/groups/:group_id/members", s.handleGroupMembers)
	private.POST("/groups/:group_id/list", s.handleAttachList)
	private.DELETE("/groups/:group_id/list/:list_id", s.handleDetachList)
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, gin.H{
		"success": status < 400,
		"message": message,
		"data":    data,
		"status":  status,
	})
}

func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[req.Email]
	if !ok {
		respond(c, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	u := s.users[id]
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		respond(c, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	token := newToken()
	s.tokens[token] = u.ID
	respond(c, http.StatusOK, "login successful", dto.LoginData{
		User:  dto.UserPayload{ID: u.ID, Name: u.Name, Email: u.Email},
		Token: token,
	})
}

// requireBearer checks the Authorization header and applies fault injection.
func (s *Server) requireBearer(c *gin.Context) {
	s.mu.Lock()
	if len(s.failNext) > 0 {
		status := s.failNext[0]
		s.failNext = s.failNext[1:]
		s.mu.Unlock()
		respond(c, status, "injected failure", nil)
		c.Abort()
		return
	}
	s.mu.Unlock()

	header := c.GetHeader("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		respond(c, http.StatusUnauthorized, "authorization required", nil)
		c.Abort()
		return
	}
	s.mu.Lock()
	userID, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		respond(c, http.StatusUnauthorized, "authorization required", nil)
		c.Abort()
		return
	}
	c.Set("user_id", userID)
	c.Set("token", token)
	c.Next()
}

func currentUserID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	id, _ := v.(string)
	return id
}

func (s *Server) handleLogout(c *gin.Context) {
	v, _ := c.Get("token")
	token, _ := v.(string)
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	respond(c, http.StatusOK, "logged out", nil)
}

func (s *Server) handleVerify(c *gin.Context) {
	s.mu.Lock()
	u := s.users[currentUserID(c)]
	s.mu.Unlock()
	if u == nil {
		respond(c, http.StatusUnauthorized, "authorization required", nil)
		return
	}
	respond(c, http.StatusOK, "session valid", dto.LoginData{
		User: dto.UserPayload{ID: u.ID, Name: u.Name, Email: u.Email},
	})
}

// roleOn returns the caller's role on a list, "" when no grant exists.
func roleOn(l *dto.ListPayload, userID string) string {
	for _, g := range l.SharedWith {
		if g.UserID == userID {
			return g.Role
		}
	}
	return ""
}

func canEditTasks(role string) bool  { return role == "owner" || role == "contributor" }
func canManageList(role string) bool { return role == "owner" }

func (s *Server) handleGetLists(c *gin.Context) {
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []dto.ListPayload{}
	for _, l := range s.lists {
		if roleOn(l, userID) != "" || l.OwnerID == userID {
			out = append(out, *l)
		}
	}
	respond(c, http.StatusOK, "", out)
}

func (s *Server) handleGetList(c *gin.Context) {
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if roleOn(l, userID) == "" && l.OwnerID != userID {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	respond(c, http.StatusOK, "", *l)
}

func (s *Server) handleCreateList(c *gin.Context) {
	var req dto.CreateListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	now := time.Now().UTC()
	l := &dto.ListPayload{
		ID:      uuid.NewString(),
		Name:    req.Name,
		OwnerID: userID,
		GroupID: req.GroupID,
		SharedWith: []dto.SharedUserPayload{
			{UserID: userID, Name: u.Name, Email: u.Email, Role: "owner"},
		},
		TodoItems: []dto.TaskPayload{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists[l.ID] = l
	if req.GroupID != "" {
		if g, ok := s.groups[req.GroupID]; ok {
			g.Lists = append(g.Lists, l.ID)
		}
	}
	respond(c, http.StatusCreated, "list created", *l)
}

func (s *Server) handleUpdateList(c *gin.Context) {
	var req dto.UpdateListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canManageList(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	if req.Name != nil {
		l.Name = *req.Name
	}
	l.UpdatedAt = time.Now().UTC()
	respond(c, http.StatusOK, "list updated", *l)
}

func (s *Server) handleDeleteList(c *gin.Context) {
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canManageList(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	delete(s.lists, l.ID)
	for _, g := range s.groups {
		for i, id := range g.Lists {
			if id == l.ID {
				g.Lists = append(g.Lists[:i], g.Lists[i+1:]...)
				break
			}
		}
	}
	respond(c, http.StatusOK, "list deleted", nil)
}

func (s *Server) handleShare(c *gin.Context) {
	var req dto.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canManageList(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	if req.UserID == l.OwnerID {
		respond(c, http.StatusConflict, "owner grant is immutable", nil)
		return
	}
	if req.Remove {
		for i := range l.SharedWith {
			if l.SharedWith[i].UserID == req.UserID {
				l.SharedWith = append(l.SharedWith[:i], l.SharedWith[i+1:]...)
				break
			}
		}
	} else {
		target := s.users[req.UserID]
		grant := dto.SharedUserPayload{UserID: req.UserID, Role: req.Role}
		if target != nil {
			grant.Name, grant.Email = target.Name, target.Email
		}
		replaced := false
		for i := range l.SharedWith {
			if l.SharedWith[i].UserID == req.UserID {
				l.SharedWith[i] = grant
				replaced = true
				break
			}
		}
		if !replaced {
			l.SharedWith = append(l.SharedWith, grant)
		}
	}
	l.UpdatedAt = time.Now().UTC()
	respond(c, http.StatusOK, "sharing updated", *l)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canEditTasks(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	t := dto.TaskPayload{
		ID:          uuid.NewString(),
		Task:        req.Task,
		Description: req.Description,
		DueDate:     req.DueDate.Ptr(),
		CreatedAt:   time.Now().UTC(),
	}
	l.TodoItems = append(l.TodoItems, t)
	l.UpdatedAt = t.CreatedAt
	respond(c, http.StatusCreated, "task created", t)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canEditTasks(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	for i := range l.TodoItems {
		if l.TodoItems[i].ID != c.Param("task_id") {
			continue
		}
		t := &l.TodoItems[i]
		if req.Task != nil {
			t.Task = *req.Task
		}
		if req.Description != nil {
			t.Description = *req.Description
		}
		if req.IsCompleted != nil {
			t.IsCompleted = *req.IsCompleted
		}
		if req.DueDate != nil {
			t.DueDate = req.DueDate.Ptr()
		}
		l.UpdatedAt = time.Now().UTC()
		respond(c, http.StatusOK, "task updated", *t)
		return
	}
	respond(c, http.StatusNotFound, "task not found", nil)
}

func (s *Server) handleDeleteTask(c *gin.Context) {
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lists[c.Param("list_id")]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	if !canEditTasks(roleOn(l, userID)) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	for i := range l.TodoItems {
		if l.TodoItems[i].ID == c.Param("task_id") {
			l.TodoItems = append(l.TodoItems[:i], l.TodoItems[i+1:]...)
			l.UpdatedAt = time.Now().UTC()
			respond(c, http.StatusOK, "task deleted", nil)
			return
		}
	}
	respond(c, http.StatusNotFound, "task not found", nil)
}

func (s *Server) handleGetGroups(c *gin.Context) {
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []dto.GroupPayload{}
	for _, g := range s.groups {
		if g.OwnerID == userID {
			out = append(out, *g)
			continue
		}
		for _, m := range g.Members {
			if m.UserID == userID {
				out = append(out, *g)
				break
			}
		}
	}
	respond(c, http.StatusOK, "", out)
}

func (s *Server) handleCreateGroup(c *gin.Context) {
	var req dto.CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID]
	g := &dto.GroupPayload{
		ID:      uuid.NewString(),
		Name:    req.Name,
		OwnerID: userID,
		Members: []dto.SharedUserPayload{
			{UserID: userID, Name: u.Name, Email: u.Email, Role: "owner"},
		},
		Lists:     []string{},
		CreatedAt: time.Now().UTC(),
	}
	s.groups[g.ID] = g
	respond(c, http.StatusCreated, "group created", *g)
}

// groupForOwner looks the group up and enforces owner-only access. Writes
// the error response itself; callers bail on nil.
func (s *Server) groupForOwner(c *gin.Context) *dto.GroupPayload {
	g, ok := s.groups[c.Param("group_id")]
	if !ok {
		respond(c, http.StatusNotFound, "group not found", nil)
		return nil
	}
	if g.OwnerID != currentUserID(c) {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return nil
	}
	return g
}

func (s *Server) handleUpdateGroup(c *gin.Context) {
	var req dto.UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.groupForOwner(c)
	if g == nil {
		return
	}
	if req.Name != nil {
		g.Name = *req.Name
	}
	respond(c, http.StatusOK, "group updated", *g)
}

func (s *Server) handleDeleteGroup(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.groupForOwner(c)
	if g == nil {
		return
	}
	delete(s.groups, g.ID)
	for _, l := range s.lists {
		if l.GroupID == g.ID {
			l.GroupID = ""
		}
	}
	respond(c, http.StatusOK, "group deleted", nil)
}

func (s *Server) handleGroupMembers(c *gin.Context) {
	var req dto.ShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.groupForOwner(c)
	if g == nil {
		return
	}
	if req.UserID == g.OwnerID {
		respond(c, http.StatusConflict, "owner membership is immutable", nil)
		return
	}
	if req.Remove {
		for i := range g.Members {
			if g.Members[i].UserID == req.UserID {
				g.Members = append(g.Members[:i], g.Members[i+1:]...)
				break
			}
		}
	} else {
		target := s.users[req.UserID]
		member := dto.SharedUserPayload{UserID: req.UserID, Role: req.Role}
		if target != nil {
			member.Name, member.Email = target.Name, target.Email
		}
		replaced := false
		for i := range g.Members {
			if g.Members[i].UserID == req.UserID {
				g.Members[i] = member
				replaced = true
				break
			}
		}
		if !replaced {
			g.Members = append(g.Members, member)
		}
	}
	respond(c, http.StatusOK, "membership updated", *g)
}

func (s *Server) handleDetachList(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.groupForOwner(c)
	if g == nil {
		return
	}
	listID := c.Param("list_id")
	found := false
	for i, id := range g.Lists {
		if id == listID {
			g.Lists = append(g.Lists[:i], g.Lists[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		respond(c, http.StatusNotFound, "list not in group", nil)
		return
	}
	if l, ok := s.lists[listID]; ok {
		l.GroupID = ""
	}
	respond(c, http.StatusOK, "list detached", *g)
}

func (s *Server) handleAttachList(c *gin.Context) {
	var req dto.AttachListRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	userID := currentUserID(c)
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[c.Param("group_id")]
	if !ok {
		respond(c, http.StatusNotFound, "group not found", nil)
		return
	}
	if g.OwnerID != userID {
		respond(c, http.StatusForbidden, "permission denied", nil)
		return
	}
	l, ok := s.lists[req.ListID]
	if !ok {
		respond(c, http.StatusNotFound, "list not found", nil)
		return
	}
	g.Lists = append(g.Lists, req.ListID)
	l.GroupID = g.ID
	respond(c, http.StatusOK, "list attached", *g)
}
