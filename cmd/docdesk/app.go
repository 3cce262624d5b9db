package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/config"
	"github.com/jackzampolin/docdesk/internal/home"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/progress"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/session"
	"github.com/jackzampolin/docdesk/internal/state"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// app is everything a command needs, built once per invocation.
type app struct {
	configMgr *config.Manager
	home      *home.Dir
	state     *state.Store
	client    *api.Client
	notes     *notify.Recorder
	coord     *books.Coordinator
	session   *session.Session
	agents    *agents.Store
	logger    *slog.Logger
}

// newApp loads config, opens local state and wires the services.
func newApp() (*app, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	mgr, err := config.NewManager(file)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := state.Open(h.StatePath())
	if err != nil {
		return nil, err
	}

	notes := notify.NewRecorder(100, notify.Func(func(level notify.Level, msg string) {
		fmt.Fprintln(os.Stderr, render.Notice(string(level), msg))
	}))

	client := api.New(api.ClientConfig{
		BaseURL:  cfg.APIURL,
		Tokens:   st,
		Notifier: notes,
		Logger:   logger,
		Timeout:  cfg.Timing.RequestTimeout,
	})

	coord := books.New(books.Config{
		Client: client,
		Dialer: progress.NewWSDialer(progress.WSDialerConfig{
			BaseURL: cfg.WebSocketBase(),
			Tokens:  st,
			Logger:  logger,
		}),
		Hints:             st,
		Notifier:          notes,
		Logger:            logger,
		IndexPollInterval: cfg.Timing.IndexPollInterval,
		CompletionDelay:   cfg.Timing.CompletionDelay,
	})

	sess := session.New(session.Config{Client: client, Tokens: st, Notifier: notes, Logger: logger})
	store := agents.New(agents.Config{Client: client, Notifier: notes, Logger: logger})

	// A new login must never see the previous user's jobs or agents.
	sess.OnLogout(coord.Reset)
	sess.OnLogout(store.Clear)

	return &app{
		configMgr: mgr,
		home:      h,
		state:     st,
		client:    client,
		notes:     notes,
		coord:     coord,
		session:   sess,
		agents:    store,
		logger:    logger,
	}, nil
}

// withApp builds the app, runs fn and tears the app down.
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// requireLogin loads the signed-in user from the persisted token.
func (a *app) requireLogin(ctx context.Context) (*session.User, error) {
	u, err := a.session.Refresh(ctx)
	if errors.Is(err, session.ErrNotLoggedIn) {
		return nil, errors.New("not logged in: run docdesk login")
	}
	return u, err
}

// requireAdmin is requireLogin plus a role check.
func (a *app) requireAdmin(ctx context.Context) (*session.User, error) {
	u, err := a.requireLogin(ctx)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, fmt.Errorf("user %s is not an admin", u.Username)
	}
	return u, nil
}

func (a *app) services() *svcctx.Services {
	return &svcctx.Services{
		Coordinator:   a.coord,
		Session:       a.session,
		Agents:        a.agents,
		Notifications: a.notes,
		State:         a.state,
		ConfigManager: a.configMgr,
		Logger:        a.logger,
		Home:          a.home,
	}
}

// Close stops trackers and closes local state. Job hints survive, so a
// later docdesk books watch picks the jobs back up.
func (a *app) Close() error {
	a.coord.Close()
	return a.state.Close()
}
