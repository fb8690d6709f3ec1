// Package session owns "who is logged in and with what credential". It is
// the only writer of that state; everything else observes it.
package session

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"

	dom "github.com/thompsonmanda08/task-sync-sub001/internal/domain"
	"github.com/thompsonmanda08/task-sync-sub001/internal/dto"
	api "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// State is the session lifecycle. Unknown exists only between process start
// and the first Initialize; there is no way back into it.
type State int

const (
	StateUnknown State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// Event is delivered to observers on every state transition. Observers use
// it to purge identity-scoped caches: every transition into Unauthenticated
// and every login must be observed.
type Event struct {
	State State
	User  dom.User // zero value when unauthenticated
}

var (
	// ErrInvalidCredentials is returned by Login when the server rejects
	// the email/password pair.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotAuthenticated is returned by calls that need an active session.
	ErrNotAuthenticated = errors.New("not authenticated")
)

const defaultTTL = 24 * time.Hour

// Store is the single authoritative session holder.
type Store struct {
	api  api.AuthAPI
	file tokenFile
	ttl  time.Duration

	mu        stdsync.Mutex
	state     State
	user      dom.User
	token     string
	observers []func(Event)

	verify singleflight.Group
}

// New returns a Store in StateUnknown. path is the session file location;
// ttl bounds how long a persisted token is trusted locally.
func New(authAPI api.AuthAPI, path string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		api:   authAPI,
		file:  tokenFile{path: path},
		ttl:   ttl,
		state: StateUnknown,
	}
}

// OnTransition registers fn to run after every state transition. Register
// before Initialize; registration is not synchronized with delivery.
func (s *Store) OnTransition(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Initialize loads the persisted token, verifies it remotely and resolves
// the Unknown state. It never fails: any problem (missing record, stale
// record, network error, rejected token) resolves to Unauthenticated and
// clears the persisted record. Callers should treat the store as "unknown"
// until this returns.
func (s *Store) Initialize(ctx context.Context) State {
	rec, err := s.file.load()
	if err != nil {
		_ = s.file.clear()
		return s.setUnauthenticated()
	}
	if !rec.ExpiresAt.IsZero() && time.Now().After(rec.ExpiresAt) {
		_ = s.file.clear()
		return s.setUnauthenticated()
	}

	user, err := s.api.Verify(ctx, rec.AccessToken)
	if err != nil {
		_ = s.file.clear()
		return s.setUnauthenticated()
	}
	return s.setAuthenticated(user, rec.AccessToken)
}

// Login exchanges credentials for a session, persists the token and
// transitions to Authenticated. On failure the prior state is untouched.
func (s *Store) Login(ctx context.Context, email, password string) (dom.User, error) {
	user, token, err := s.api.Login(ctx, email, password)
	if err != nil {
		if api.IsKind(err, api.Unauthorized) {
			return dom.User{}, ErrInvalidCredentials
		}
		return dom.User{}, fmt.Errorf("login: %w", err)
	}

	now := time.Now()
	saveErr := s.file.save(record{
		AccessToken: token,
		User:        dto.UserFromDomain(user),
		SavedAt:     now,
		ExpiresAt:   now.Add(s.ttl),
	})

	s.setAuthenticated(user, token)
	if saveErr != nil {
		// The in-memory session is live; only persistence across restarts
		// is lost.
		return user, fmt.Errorf("persist session: %w", saveErr)
	}
	return user, nil
}

// Logout revokes the token remotely (best effort), removes the persisted
// record and transitions to Unauthenticated. Idempotent.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token != "" {
		// Revocation failure never blocks local logout.
		_ = s.api.Revoke(ctx, token)
	}
	if err := s.file.clear(); err != nil {
		return fmt.Errorf("clear session file: %w", err)
	}
	s.setUnauthenticated()
	return nil
}

// HandleUnauthorized re-verifies the current token after a gateway call came
// back Unauthorized; concurrent callers share one verification round trip.
// If the token no longer holds, the session is torn down locally (the purge
// cascade runs via observers). Returns whether the session survived.
func (s *Store) HandleUnauthorized(ctx context.Context) bool {
	s.mu.Lock()
	token := s.token
	state := s.state
	s.mu.Unlock()
	if state != StateAuthenticated || token == "" {
		return false
	}

	alive, _, _ := s.verify.Do(token, func() (any, error) {
		if _, err := s.api.Verify(ctx, token); err != nil {
			_ = s.file.clear()
			s.setUnauthenticated()
			return false, nil
		}
		return true, nil
	})
	return alive.(bool)
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsAuthenticated reports whether a session is active.
func (s *Store) IsAuthenticated() bool {
	return s.State() == StateAuthenticated
}

// CurrentUser returns the authenticated user, or false.
func (s *Store) CurrentUser() (dom.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return dom.User{}, false
	}
	return s.user, true
}

// AccessToken returns the active bearer token, or "" when logged out. Wired
// into the gateway as its token source.
func (s *Store) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return ""
	}
	return s.token
}

// setAuthenticated and setUnauthenticated are the only state writers.

func (s *Store) setAuthenticated(user dom.User, token string) State {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = user
	s.token = token
	obs := make([]func(Event), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	ev := Event{State: StateAuthenticated, User: user}
	for _, fn := range obs {
		fn(ev)
	}
	return StateAuthenticated
}

func (s *Store) setUnauthenticated() State {
	s.mu.Lock()
	alreadyOut := s.state == StateUnauthenticated
	s.state = StateUnauthenticated
	s.user = dom.User{}
	s.token = ""
	obs := make([]func(Event), len(s.observers))
	copy(obs, s.observers)
	s.mu.Unlock()

	if alreadyOut {
		return StateUnauthenticated
	}
	ev := Event{State: StateUnauthenticated}
	for _, fn := range obs {
		fn(ev)
	}
	return StateUnauthenticated
}
