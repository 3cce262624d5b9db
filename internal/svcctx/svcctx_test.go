package svcctx

import (
	"context"
	"log/slog"
	"testing"

	"github.com/jackzampolin/docdesk/internal/notify"
)

func TestServicesFrom(t *testing.T) {
	ctx := context.Background()
	if ServicesFrom(ctx) != nil {
		t.Error("empty context should have no services")
	}
	if CoordinatorFrom(ctx) != nil || SessionFrom(ctx) != nil || AgentsFrom(ctx) != nil {
		t.Error("extractors should return nil without services")
	}
	if LoggerFrom(ctx) == nil {
		t.Error("LoggerFrom should fall back to the default logger")
	}
	if cfg := ConfigFrom(ctx); cfg.Indexing.ChunkSize != 1000 {
		t.Errorf("ConfigFrom should fall back to defaults, got chunk size %d", cfg.Indexing.ChunkSize)
	}

	rec := notify.NewRecorder(10, nil)
	logger := slog.Default().With("test", true)
	ctx = WithServices(ctx, &Services{Notifications: rec, Logger: logger})
	if NotificationsFrom(ctx) != rec {
		t.Error("NotificationsFrom returned the wrong recorder")
	}
	if LoggerFrom(ctx) != logger {
		t.Error("LoggerFrom returned the wrong logger")
	}
}
