// Package testutil provides a scriptable fake of the document backend
// (REST and progress sockets) for package tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// Backend is an in-process fake of the document backend.
//
// REST routes are matched exactly on "METHOD /path"; unknown routes answer
// 404 with a FastAPI-style detail. Any request under /ws/ is upgraded to a
// WebSocket and can be driven with Send and CloseSocket.
type Backend struct {
	t        testing.TB
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	routes  map[string]http.HandlerFunc
	hits    map[string]int
	bodies  map[string][]byte
	total   int
	sockets map[string]*websocket.Conn
	dials   map[string]int
}

// NewBackend starts a fake backend and registers its shutdown with t.
func NewBackend(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		t:       t,
		routes:  make(map[string]http.HandlerFunc),
		hits:    make(map[string]int),
		bodies:  make(map[string][]byte),
		sockets: make(map[string]*websocket.Conn),
		dials:   make(map[string]int),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.Close)
	return b
}

// URL returns the REST root.
func (b *Backend) URL() string { return b.srv.URL }

// WSURL returns the socket root.
func (b *Backend) WSURL() string { return "ws" + strings.TrimPrefix(b.srv.URL, "http") }

// Close hangs up every socket and stops the server.
func (b *Backend) Close() {
	b.mu.Lock()
	for path, conn := range b.sockets {
		conn.Close()
		delete(b.sockets, path)
	}
	b.mu.Unlock()
	b.srv.Close()
}

// Handle registers handler for method and exact path, replacing any previous one.
func (b *Backend) Handle(method, path string, handler http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[method+" "+path] = handler
}

// JSON registers a route that always answers status with v encoded as JSON.
func (b *Backend) JSON(method, path string, status int, v any) {
	b.Handle(method, path, JSONHandler(status, v))
}

// JSONHandler answers status with v encoded as JSON.
func JSONHandler(status int, v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}
}

// Hits returns how many REST requests reached method and path.
func (b *Backend) Hits(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[method+" "+path]
}

// TotalHits returns how many REST requests were served, matched or not.
func (b *Backend) TotalHits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// LastBody returns the body of the most recent request to method and path.
func (b *Backend) LastBody(method, path string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[method+" "+path]
}

// Dials returns how many sockets were opened on path.
func (b *Backend) Dials(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials[path]
}

// Connected reports whether a socket is currently open on path.
func (b *Backend) Connected(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sockets[path]
	return ok
}

// WaitConnected blocks until a socket is open on path or fails the test.
func (b *Backend) WaitConnected(path string) {
	b.t.Helper()
	if !Eventually(2*time.Second, func() bool { return b.Connected(path) }) {
		b.t.Fatalf("no socket connected on %s", path)
	}
}

// WaitDisconnected blocks until the socket on path is gone or fails the test.
func (b *Backend) WaitDisconnected(path string) {
	b.t.Helper()
	if !Eventually(2*time.Second, func() bool { return !b.Connected(path) }) {
		b.t.Fatalf("socket on %s still connected", path)
	}
}

// Send writes msg to the socket on path, waiting for it to connect first.
// Strings and byte slices are sent verbatim; anything else is JSON encoded.
func (b *Backend) Send(path string, msg any) {
	b.t.Helper()
	b.WaitConnected(path)

	var data []byte
	switch m := msg.(type) {
	case string:
		data = []byte(m)
	case []byte:
		data = m
	default:
		var err error
		if data, err = json.Marshal(m); err != nil {
			b.t.Fatalf("failed to encode socket message: %v", err)
		}
	}

	b.mu.Lock()
	conn := b.sockets[path]
	b.mu.Unlock()
	if conn == nil {
		b.t.Fatalf("socket on %s went away", path)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		b.t.Fatalf("failed to send on %s: %v", path, err)
	}
}

// CloseSocket drops the socket on path without a close handshake.
func (b *Backend) CloseSocket(path string) {
	b.t.Helper()
	b.WaitConnected(path)
	b.mu.Lock()
	conn := b.sockets[path]
	delete(b.sockets, path)
	b.mu.Unlock()
	conn.Close()
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/ws/") {
		b.serveSocket(w, r)
		return
	}

	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	b.mu.Lock()
	b.total++
	b.hits[key]++
	b.bodies[key] = body
	handler := b.routes[key]
	b.mu.Unlock()

	if handler == nil {
		JSONHandler(http.StatusNotFound, map[string]string{"detail": "Not Found"})(w, r)
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	handler(w, r)
}

func (b *Backend) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.t.Logf("socket upgrade failed: %v", err)
		return
	}
	path := r.URL.Path

	b.mu.Lock()
	if old := b.sockets[path]; old != nil {
		old.Close()
	}
	b.sockets[path] = conn
	b.dials[path]++
	b.mu.Unlock()

	// Read until the client hangs up so Connected reflects client closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	b.mu.Lock()
	if b.sockets[path] == conn {
		delete(b.sockets, path)
	}
	b.mu.Unlock()
	conn.Close()
}

// Eventually polls cond every 10ms until it holds or timeout elapses.
func Eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// BookJSON builds a minimal backend book record.
func BookJSON(id, name, status string) map[string]any {
	return map[string]any{
		"_id":      id,
		"doc_name": name,
		"author":   "Test Author",
		"category": "Report",
		"status":   status,
	}
}

// MinimalPDF returns a small, valid single-page PDF document.
func MinimalPDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}

	var sb strings.Builder
	sb.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = sb.Len()
		fmt.Fprintf(&sb, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := sb.Len()
	fmt.Fprintf(&sb, "xref\n0 %d\n", len(objects)+1)
	sb.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&sb, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&sb, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(sb.String())
}
