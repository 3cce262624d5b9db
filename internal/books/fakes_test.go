package books

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/progress"
	"github.com/jackzampolin/docdesk/internal/state"
	"github.com/jackzampolin/docdesk/internal/testutil"
)

// fakeStream is a progress stream driven by the test. Close only counts;
// the channel is left open so sends never race with it.
type fakeStream struct {
	msgs   chan progress.Message
	closes atomic.Int32

	mu  sync.Mutex
	err error
}

func newFakeStream() *fakeStream {
	return &fakeStream{msgs: make(chan progress.Message, 16)}
}

func (s *fakeStream) Messages() <-chan progress.Message { return s.msgs }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	return nil
}

// drop simulates the backend hanging up.
func (s *fakeStream) drop(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.msgs)
}

type fakeDialer struct {
	mu      sync.Mutex
	streams map[string]*fakeStream
	fail    map[progress.Kind]error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{
		streams: make(map[string]*fakeStream),
		fail:    make(map[progress.Kind]error),
	}
}

func (d *fakeDialer) Dial(ctx context.Context, kind progress.Kind, bookID string) (progress.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[kind]; err != nil {
		return nil, err
	}
	s := newFakeStream()
	d.streams[string(kind)+"/"+bookID] = s
	return s, nil
}

func (d *fakeDialer) failKind(kind progress.Kind, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[kind] = err
}

func (d *fakeDialer) dialed(kind progress.Kind, bookID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.streams[string(kind)+"/"+bookID]; ok {
		return 1
	}
	return 0
}

func (d *fakeDialer) stream(t *testing.T, kind progress.Kind, bookID string) *fakeStream {
	t.Helper()
	var s *fakeStream
	ok := testutil.Eventually(2*time.Second, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		s = d.streams[string(kind)+"/"+bookID]
		return s != nil
	})
	if !ok {
		t.Fatalf("no %s stream dialed for %s", kind, bookID)
	}
	return s
}

type harness struct {
	backend *testutil.Backend
	dialer  *fakeDialer
	store   *state.Store
	notes   *notify.Recorder
	coord   *Coordinator
}

type harnessOption func(*Config)

func withDelay(d time.Duration) harnessOption {
	return func(c *Config) { c.CompletionDelay = d }
}

func withPoll(d time.Duration) harnessOption {
	return func(c *Config) { c.IndexPollInterval = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	backend := testutil.NewBackend(t)
	backend.JSON("GET", "/books/", 200, []any{
		testutil.BookJSON("b1", "Annual Report", "Unprocessed"),
		testutil.BookJSON("b2", "Budget", "Processing"),
	})

	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("failed to open state: %v", err)
	}

	notes := notify.NewRecorder(0, nil)
	dialer := newFakeDialer()
	cfg := Config{
		Client:            api.New(api.ClientConfig{BaseURL: backend.URL(), Tokens: store, Notifier: notes}),
		Dialer:            dialer,
		Hints:             store,
		Notifier:          notes,
		IndexPollInterval: time.Hour,
		CompletionDelay:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		backend: backend,
		dialer:  dialer,
		store:   store,
		notes:   notes,
		coord:   New(cfg),
	}
	t.Cleanup(func() {
		h.coord.Close()
		store.Close()
	})
	return h
}

func (h *harness) waitNoTracker(t *testing.T, bookID string, kind progress.Kind) {
	t.Helper()
	if !testutil.Eventually(2*time.Second, func() bool { return !h.coord.Tracking(bookID, kind) }) {
		t.Fatalf("%s tracker for %s was not removed", kind, bookID)
	}
}

func (h *harness) hints(t *testing.T, key string) map[string]Progress {
	t.Helper()
	var m map[string]Progress
	err := h.store.GetJSON(context.Background(), key, &m)
	if errors.Is(err, state.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read hints: %v", err)
	}
	return m
}

func intPtr(n int) *int { return &n }
