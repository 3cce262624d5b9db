// Package session tracks the signed-in user and owns the bearer token.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
)

// ErrNotLoggedIn is returned when an operation needs a signed-in user.
var ErrNotLoggedIn = errors.New("not logged in")

// User is the signed-in account as reported by /users/me.
type User struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// IsAdmin reports whether the user may manage other accounts.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == "admin"
}

// Registration is a new account request.
type Registration struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// UserUpdate carries the fields to change on an account; nil fields are left alone.
type UserUpdate struct {
	Username   *string `json:"username,omitempty"`
	Role       *string `json:"role,omitempty"`
	Department *string `json:"department,omitempty"`
	Password   *string `json:"password,omitempty"`
}

// TokenStore persists the bearer token between runs.
type TokenStore interface {
	SetToken(ctx context.Context, token string) error
	ClearToken(ctx context.Context) error
}

// Config configures a Session.
type Config struct {
	// Client is the backend REST client (required)
	Client *api.Client
	// Tokens persists the login token (optional)
	Tokens TokenStore
	// Notifier receives user-facing messages (optional)
	Notifier notify.Notifier
	// Logger is the structured logger to use (optional)
	Logger *slog.Logger
}

// Session is the client's view of who is signed in.
type Session struct {
	client   *api.Client
	tokens   TokenStore
	notifier notify.Notifier
	logger   *slog.Logger

	mu    sync.RWMutex
	user  *User
	hooks []func()
}

// New creates a Session with no user. Call Refresh to pick up a persisted login.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	return &Session{
		client:   cfg.Client,
		tokens:   cfg.Tokens,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
}

// OnLogout registers fn to run after every logout, in registration order.
func (s *Session) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Session) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// RequireUser returns the signed-in user or ErrNotLoggedIn.
func (s *Session) RequireUser() (*User, error) {
	if u := s.CurrentUser(); u != nil {
		return u, nil
	}
	return nil, ErrNotLoggedIn
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}

// Refresh asks the backend who is signed in. Any failure, including a
// response without a username, leaves the session with no user.
func (s *Session) Refresh(ctx context.Context) (*User, error) {
	var u User
	if err := s.client.Get(ctx, "/users/me", &u); err != nil {
		s.setUser(nil)
		return nil, fmt.Errorf("%w: %w", ErrNotLoggedIn, err)
	}
	if u.Username == "" {
		s.setUser(nil)
		return nil, ErrNotLoggedIn
	}
	s.setUser(&u)
	return s.CurrentUser(), nil
}

// Login signs in, stores the returned token and loads the user.
func (s *Session) Login(ctx context.Context, username, password string) (*User, error) {
	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := s.client.Post(ctx, "/users/login", body, &resp); err != nil {
		s.setUser(nil)
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Login failed"))
		return nil, fmt.Errorf("failed to log in: %w", err)
	}

	if resp.Token != "" && s.tokens != nil {
		if err := s.tokens.SetToken(ctx, resp.Token); err != nil {
			s.setUser(nil)
			return nil, fmt.Errorf("failed to save token: %w", err)
		}
	}

	u, err := s.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load user after login: %w", err)
	}
	s.logger.Info("logged in", "username", u.Username, "role", u.Role)
	return u, nil
}

// Logout tells the backend (best effort), forgets the user and token, and
// runs the logout hooks.
func (s *Session) Logout(ctx context.Context) error {
	s.setUser(nil)

	if err := s.client.Post(ctx, "/users/logout", nil, nil); err != nil {
		s.logger.Debug("backend logout failed", "error", err)
	}

	var tokenErr error
	if s.tokens != nil {
		if err := s.tokens.ClearToken(ctx); err != nil {
			tokenErr = fmt.Errorf("failed to clear token: %w", err)
		}
	}

	s.mu.RLock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}

	s.logger.Info("logged out")
	return tokenErr
}

// ListUsers returns every account. Admin only on the backend.
func (s *Session) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.client.Get(ctx, "/users/all", &users); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to fetch users"))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Register creates an account.
func (s *Session) Register(ctx context.Context, r Registration) (*User, error) {
	if r.Username == "" || r.Password == "" {
		return nil, errors.New("username and password are required")
	}
	if r.Role == "" {
		r.Role = "user"
	}
	var u User
	if err := s.client.Post(ctx, "/users/register", r, &u); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to add user"))
		return nil, fmt.Errorf("failed to register user: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, "User added successfully")
	return &u, nil
}

// EditUser updates an account. Editing yourself reloads the session user.
func (s *Session) EditUser(ctx context.Context, id string, update UserUpdate) error {
	if err := s.client.Patch(ctx, api.Pathf("/users/%s", id), update, nil); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to update user"))
		return fmt.Errorf("failed to edit user: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, "User updated")

	if u := s.CurrentUser(); u != nil && u.ID == id {
		if _, err := s.Refresh(ctx); err != nil {
			s.logger.Warn("failed to refresh current user after edit", "error", err)
		}
	}
	return nil
}

// DeleteUser removes an account. Deleting yourself logs out.
func (s *Session) DeleteUser(ctx context.Context, id string) error {
	if err := s.client.Delete(ctx, api.Pathf("/users/%s", id), nil); err != nil {
		s.notifier.Notify(notify.LevelError, api.Detail(err, "Failed to delete user"))
		return fmt.Errorf("failed to delete user: %w", err)
	}
	s.notifier.Notify(notify.LevelSuccess, "User deleted")

	if u := s.CurrentUser(); u != nil && u.ID == id {
		return s.Logout(ctx)
	}
	return nil
}
