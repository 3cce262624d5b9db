// Package progress subscribes to the backend's per-job progress sockets.
//
// Each subscription is a Stream: a reader goroutine decodes frames into
// Messages and closes the channel when the socket ends. There is no
// reconnect; a dropped socket ends the job's stream and Err reports why.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jackzampolin/docdesk/internal/api"
)

// Kind identifies which backend job a socket reports on.
type Kind string

const (
	Classification Kind = "classification"
	Analysis       Kind = "analysis"
	Indexing       Kind = "indexing"
)

// Kinds lists every job kind in display order.
var Kinds = []Kind{Indexing, Classification, Analysis}

// ErrUnknownKind is returned when dialing a kind with no socket path.
var ErrUnknownKind = errors.New("unknown progress kind")

// Path returns the socket path for a job on bookID.
func (k Kind) Path(bookID string) (string, error) {
	id := url.PathEscape(bookID)
	switch k {
	case Classification:
		return "/ws/progress/" + id, nil
	case Analysis:
		return "/ws/analysis-progress/" + id, nil
	case Indexing:
		return "/ws/index-progress/" + id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, string(k))
	}
}

// Stream is a live progress subscription.
type Stream interface {
	// Messages yields decoded updates and is closed when the stream ends.
	Messages() <-chan Message
	// Err reports why the stream ended; nil after a local Close.
	Err() error
	// Close tears down the subscription. It is safe to call more than once.
	Close() error
}

// Dialer opens progress streams.
type Dialer interface {
	Dial(ctx context.Context, kind Kind, bookID string) (Stream, error)
}

// WSDialerConfig configures a WSDialer.
type WSDialerConfig struct {
	// BaseURL is the socket root, e.g. ws://localhost:8000
	BaseURL string
	// Tokens supplies a bearer token sent on the handshake (optional)
	Tokens api.TokenSource
	// Dialer overrides the gorilla dialer (optional)
	Dialer *websocket.Dialer
	// Logger is the structured logger to use (optional)
	Logger *slog.Logger
}

// WSDialer dials backend progress sockets over WebSocket.
type WSDialer struct {
	baseURL string
	tokens  api.TokenSource
	dialer  *websocket.Dialer
	logger  *slog.Logger
}

// NewWSDialer creates a WebSocket dialer.
func NewWSDialer(cfg WSDialerConfig) *WSDialer {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WSDialer{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		tokens:  cfg.Tokens,
		dialer:  cfg.Dialer,
		logger:  cfg.Logger,
	}
}

// Dial opens the socket for kind on bookID. ctx bounds only the handshake;
// the stream lives until it is closed or the backend hangs up.
func (d *WSDialer) Dial(ctx context.Context, kind Kind, bookID string) (Stream, error) {
	path, err := kind.Path(bookID)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if d.tokens != nil {
		token, err := d.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load token: %w", err)
		}
		if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.baseURL+path, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s progress for %s: %w", kind, bookID, err)
	}

	logger := d.logger.With("book_id", bookID, "kind", string(kind))
	logger.Debug("progress socket opened", "url", d.baseURL+path)

	s := &wsStream{
		conn:   conn,
		msgs:   make(chan Message, 16),
		done:   make(chan struct{}),
		logger: logger,
	}
	go s.readLoop()
	return s, nil
}

type wsStream struct {
	conn   *websocket.Conn
	msgs   chan Message
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	err    error
	closed bool
}

func (s *wsStream) Messages() <-chan Message { return s.msgs }

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
		// Best-effort close frame; the read loop exits when the conn closes.
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

func (s *wsStream) readLoop() {
	defer close(s.msgs)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		msg, err := Parse(data)
		if err != nil {
			s.logger.Warn("ignoring malformed progress message", "error", err)
			continue
		}
		select {
		case s.msgs <- msg:
		case <-s.done:
			return
		}
		if msg.Finished {
			// The index sentinel is the last frame the backend sends.
			s.finish(nil)
			return
		}
	}
}

func (s *wsStream) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || err == nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		s.logger.Debug("progress socket closed")
		return
	}
	s.err = fmt.Errorf("progress socket failed: %w", err)
	s.logger.Warn("progress socket ended unexpectedly", "error", err)
}
