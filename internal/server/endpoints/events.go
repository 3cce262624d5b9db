package endpoints

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

const (
	eventBuffer    = 64
	eventWriteWait = 10 * time.Second
	eventPingEvery = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || strings.HasSuffix(origin, "://"+r.Host)
	},
}

// EventsEndpoint handles GET /api/events.
type EventsEndpoint struct{}

func (e *EventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/events", e.handler
}

func (e *EventsEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Coordinator events
//	@Description	Upgrades to a WebSocket and pushes book list, progress, removal and failure events as JSON
//	@Tags			jobs
//	@Success		101
//	@Router			/api/events [get]
func (e *EventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	logger := svcctx.LoggerFrom(r.Context())

	// Subscribe before the upgrade so nothing after the handshake is missed.
	events, stop := c.Subscribe(eventBuffer)
	defer stop()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("events upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Drain reads so close frames from the client are noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Send the current state first so a fresh client does not start blank.
	for _, p := range c.Progress() {
		if err := writeEvent(conn, books.Event{Type: books.EventProgress, BookID: p.BookID, Kind: p.Kind, Progress: &p}); err != nil {
			return
		}
	}

	ping := time.NewTicker(eventPingEvery)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(eventWriteWait))
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				logger.Debug("events write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev books.Event) error {
	conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
	return conn.WriteJSON(ev)
}

func (e *EventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream coordinator events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return streamEvents(cmd.Context(), getServerURL(), func(ev books.Event) error {
				if api.IsStructuredOutput() {
					return api.Output(ev)
				}
				fmt.Fprintln(os.Stdout, formatEvent(ev))
				return nil
			})
		},
	}
}

// streamEvents dials the dashboard's event socket and hands each event to fn
// until ctx is done or the dashboard closes the socket.
func streamEvents(ctx context.Context, serverURL string, fn func(books.Event) error) error {
	wsURL := "ws" + strings.TrimPrefix(strings.TrimSuffix(serverURL, "/"), "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var ev books.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}

func formatEvent(ev books.Event) string {
	switch ev.Type {
	case books.EventProgress:
		if ev.Progress != nil {
			return fmt.Sprintf("%s %s %.0f%%", ev.BookID, ev.Kind, ev.Progress.Percent)
		}
	case books.EventFailed:
		return fmt.Sprintf("%s %s failed: %s", ev.BookID, ev.Kind, ev.Error)
	case books.EventRemoved:
		return fmt.Sprintf("%s %s done", ev.BookID, ev.Kind)
	case books.EventBooks:
		return "book list refreshed"
	}
	return string(ev.Type)
}
