// Package app assembles the client: config -> gateway -> session store ->
// collaboration store, with the purge coupling between the last two.
package app

import (
	"context"

	"github.com/thompsonmanda08/task-sync-sub001/internal/collab"
	"github.com/thompsonmanda08/task-sync-sub001/internal/config"
	"github.com/thompsonmanda08/task-sync-sub001/internal/session"
	gw "github.com/thompsonmanda08/task-sync-sub001/internal/sync"
)

// App owns the client-side stores for one process. Construct at startup,
// one per identity scope; there are no package-level singletons.
type App struct {
	cfg config.Config

	Client   *gw.Client
	Sessions *session.Store
	Collab   *collab.Store
}

// New wires the stores together. The session store feeds the gateway its
// bearer token; the collaboration store purges itself on session changes.
func New(cfg config.Config) *App {
	client := gw.NewClient(cfg.Server.URL, cfg.Server.Timeout.Duration())
	sessions := session.New(client, cfg.Session.File, cfg.Session.TTL.Duration())
	client.SetTokenSource(sessions.AccessToken)
	store := collab.New(client, sessions)

	return &App{cfg: cfg, Client: client, Sessions: sessions, Collab: store}
}

// Start resolves the Unknown session state from the persisted token and, if
// a session is live, hydrates the working set.
func (a *App) Start(ctx context.Context) (session.State, error) {
	state := a.Sessions.Initialize(ctx)
	if state != session.StateAuthenticated {
		return state, nil
	}
	if err := a.Collab.Hydrate(ctx); err != nil {
		return state, err
	}
	return state, nil
}

// Version reports the configured build version.
func (a *App) Version() string { return a.cfg.App.Version }
