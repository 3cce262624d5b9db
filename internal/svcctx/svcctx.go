// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/config"
	"github.com/jackzampolin/docdesk/internal/home"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/session"
	"github.com/jackzampolin/docdesk/internal/state"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Coordinator   *books.Coordinator
	Session       *session.Session
	Agents        *agents.Store
	Notifications *notify.Recorder
	State         *state.Store
	ConfigManager *config.Manager
	Logger        *slog.Logger
	Home          *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// CoordinatorFrom extracts the book coordinator from context.
func CoordinatorFrom(ctx context.Context) *books.Coordinator {
	if s := ServicesFrom(ctx); s != nil {
		return s.Coordinator
	}
	return nil
}

// SessionFrom extracts the session from context.
func SessionFrom(ctx context.Context) *session.Session {
	if s := ServicesFrom(ctx); s != nil {
		return s.Session
	}
	return nil
}

// AgentsFrom extracts the agent store from context.
func AgentsFrom(ctx context.Context) *agents.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Agents
	}
	return nil
}

// NotificationsFrom extracts the notification recorder from context.
func NotificationsFrom(ctx context.Context) *notify.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Notifications
	}
	return nil
}

// StateFrom extracts the persisted state store from context.
func StateFrom(ctx context.Context) *state.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.State
	}
	return nil
}

// ConfigFrom returns the current configuration, or the defaults when no
// manager is attached.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.ConfigManager != nil {
		return s.ConfigManager.Get()
	}
	return config.DefaultConfig()
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
