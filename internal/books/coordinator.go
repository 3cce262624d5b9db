package books

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/pdfview"
	"github.com/jackzampolin/docdesk/internal/progress"
)

var (
	ErrNotPDF            = pdfview.ErrNotPDF
	ErrAlreadyTracking   = errors.New("a job of this kind is already tracked for this book")
	ErrInvalidChunkSize  = fmt.Errorf("chunk size must be between %d and %d", MinChunkSize, MaxChunkSize)
	ErrNoJobs            = errors.New("at least one of classification or analysis must be requested")
	ErrCoordinatorClosed = errors.New("coordinator is closed")
)

// Chunking bounds for IndexBook.
const (
	MinChunkSize     = 1000
	MaxChunkSize     = 8000
	DefaultChunkSize = 1000
)

const (
	DefaultIndexPollInterval = 4 * time.Second
	DefaultCompletionDelay   = 2 * time.Second
)

// HintStore persists in-flight job hints across restarts.
// A missing key must be reported as an error wrapping state.ErrNotFound.
type HintStore interface {
	GetJSON(ctx context.Context, key string, v any) error
	PutJSON(ctx context.Context, key string, v any) error
	Delete(ctx context.Context, key string) error
}

// Config configures a Coordinator.
type Config struct {
	// Client is the backend REST client (required)
	Client *api.Client
	// Dialer opens progress sockets (required)
	Dialer progress.Dialer
	// Hints persists active jobs for Resume (optional)
	Hints HintStore
	// Notifier receives user-facing messages (optional)
	Notifier notify.Notifier
	// Logger is the structured logger to use (optional)
	Logger *slog.Logger
	// IndexPollInterval is the fallback status poll period (default: 4s)
	IndexPollInterval time.Duration
	// CompletionDelay keeps a finished job visible at 100% (default: 2s)
	CompletionDelay time.Duration
}

// Progress is a live tracker for one job on one book.
type Progress struct {
	BookID    string        `json:"book_id"`
	Kind      progress.Kind `json:"kind"`
	Percent   float64       `json:"percent"`
	Total     *int          `json:"total,omitempty"`
	Done      *int          `json:"done,omitempty"`
	StartedAt time.Time     `json:"started_at"`
}

// EventType classifies coordinator events.
type EventType string

const (
	EventBooks    EventType = "books"
	EventProgress EventType = "progress"
	EventRemoved  EventType = "removed"
	EventFailed   EventType = "failed"
)

// Event is a state change broadcast to subscribers.
type Event struct {
	Type     EventType     `json:"type"`
	BookID   string        `json:"book_id,omitempty"`
	Kind     progress.Kind `json:"kind,omitempty"`
	Progress *Progress     `json:"progress,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type trackerKey struct {
	bookID string
	kind   progress.Kind
}

// Coordinator owns the book list and every tracked job.
type Coordinator struct {
	client          *api.Client
	dialer          progress.Dialer
	hints           HintStore
	notifier        notify.Notifier
	logger          *slog.Logger
	pollInterval    time.Duration
	completionDelay time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	books    []Book
	trackers map[trackerKey]*tracker
	closed   bool

	hintsMu sync.Mutex

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	cacheMu         sync.Mutex
	classifications map[string][]Classification
	flights         singleflight.Group

	closeOnce sync.Once
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.IndexPollInterval <= 0 {
		cfg.IndexPollInterval = DefaultIndexPollInterval
	}
	if cfg.CompletionDelay < 0 {
		cfg.CompletionDelay = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		client:          cfg.Client,
		dialer:          cfg.Dialer,
		hints:           cfg.Hints,
		notifier:        cfg.Notifier,
		logger:          cfg.Logger,
		pollInterval:    cfg.IndexPollInterval,
		completionDelay: cfg.CompletionDelay,
		ctx:             ctx,
		cancel:          cancel,
		trackers:        make(map[trackerKey]*tracker),
		subs:            make(map[int]chan Event),
		classifications: make(map[string][]Classification),
	}
}

// Subscribe returns a channel of coordinator events and a function that
// stops the subscription. Events are dropped for subscribers whose buffer
// is full.
func (c *Coordinator) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	c.subMu.Lock()
	if c.subs == nil {
		c.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

func (c *Coordinator) emit(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// FetchBooks replaces the local book list with the backend's.
func (c *Coordinator) FetchBooks(ctx context.Context) error {
	var list []Book
	if err := c.client.Get(ctx, "/books/", &list); err != nil {
		return fmt.Errorf("failed to fetch books: %w", err)
	}

	c.mu.Lock()
	c.books = list
	c.mu.Unlock()

	c.logger.Debug("books refreshed", "count", len(list))
	c.emit(Event{Type: EventBooks})
	return nil
}

// refetch reconciles with the backend after a job ends. Failures are logged.
func (c *Coordinator) refetch() {
	if err := c.FetchBooks(c.ctx); err != nil && c.ctx.Err() == nil {
		c.logger.Warn("failed to refresh books", "error", err)
	}
}

// Books returns a snapshot of the book list.
func (c *Coordinator) Books() []Book {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Book, len(c.books))
	copy(out, c.books)
	return out
}

// Book returns the locally known book with the given id.
func (c *Coordinator) Book(id string) (Book, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

func (c *Coordinator) displayName(bookID string) string {
	if b, ok := c.Book(bookID); ok && b.DocName != "" {
		return b.DocName
	}
	return bookID
}

// GetBook fetches a single book from the backend.
func (c *Coordinator) GetBook(ctx context.Context, id string) (*Book, error) {
	var b Book
	if err := c.client.Get(ctx, api.Pathf("/books/%s", id), &b); err != nil {
		return nil, fmt.Errorf("failed to get book %s: %w", id, err)
	}
	return &b, nil
}

// GetBookFile streams the book's PDF into w.
func (c *Coordinator) GetBookFile(ctx context.Context, id string, w io.Writer) (int64, error) {
	n, err := c.client.Download(ctx, api.Pathf("/books/%s/file", id), w)
	if err != nil {
		c.reportError(err, "Failed to load document")
		return n, fmt.Errorf("failed to download book %s: %w", id, err)
	}
	return n, nil
}

// CreateBook validates and uploads a new book, then refreshes the list.
// Invalid files are rejected before any request is made.
func (c *Coordinator) CreateBook(ctx context.Context, up Upload) (*pdfview.ValidationResult, error) {
	res, err := pdfview.Validate(up.FileName, up.File, up.Size)
	if err != nil {
		c.notifier.Notify(notify.LevelError, err.Error())
		return nil, fmt.Errorf("failed to validate upload: %w", err)
	}

	docName := up.DocName
	if docName == "" {
		docName = strings.TrimSuffix(filepath.Base(up.FileName), filepath.Ext(up.FileName))
	}
	fields := map[string]string{
		"doc_name":  docName,
		"author":    up.Author,
		"category":  up.Category,
		"reference": up.Reference,
		"date":      up.Date,
		"summary":   up.Summary,
	}
	file := api.FilePart{
		Field:       "file",
		FileName:    filepath.Base(up.FileName),
		ContentType: "application/pdf",
		Content:     up.File,
	}

	if err := c.client.PostMultipart(ctx, "/books/", fields, []api.FilePart{file}, nil); err != nil {
		c.reportError(err, "Failed to upload book")
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	c.logger.Info("book uploaded", "doc_name", docName, "pages", res.PageCount)
	c.notifier.Notify(notify.LevelSuccess, "Book uploaded successfully")

	if err := c.FetchBooks(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// AssignDepartments sets the departments a book is assigned to.
func (c *Coordinator) AssignDepartments(ctx context.Context, bookID string, departments []string) error {
	if departments == nil {
		departments = []string{}
	}
	if err := c.client.Put(ctx, api.Pathf("/books/%s/assign", bookID), departments, nil); err != nil {
		c.reportError(err, "Failed to assign departments")
		return fmt.Errorf("failed to assign departments: %w", err)
	}
	c.notifier.Notify(notify.LevelSuccess, "Departments assigned")
	return c.FetchBooks(ctx)
}

// AddFeedback leaves a comment on a book on behalf of a department.
func (c *Coordinator) AddFeedback(ctx context.Context, bookID, comment, department string) error {
	body := map[string]string{"comment": comment, "department": department}
	if err := c.client.Post(ctx, api.Pathf("/books/%s/feedback", bookID), body, nil); err != nil {
		c.reportError(err, "Failed to add feedback")
		return fmt.Errorf("failed to add feedback: %w", err)
	}
	c.notifier.Notify(notify.LevelSuccess, "Feedback added")
	return c.FetchBooks(ctx)
}

// Progress returns the active trackers sorted by book id then kind.
func (c *Coordinator) Progress() []Progress {
	c.mu.Lock()
	out := make([]Progress, 0, len(c.trackers))
	for _, t := range c.trackers {
		out = append(out, t.progress)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].BookID != out[j].BookID {
			return out[i].BookID < out[j].BookID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Tracking reports whether a job of kind is tracked for bookID.
func (c *Coordinator) Tracking(bookID string, kind progress.Kind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.trackers[trackerKey{bookID, kind}]
	return ok
}

// Reset forgets everything: books, trackers, persisted hints and cached
// classifications. It runs on logout.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	trackers := c.trackers
	c.trackers = make(map[trackerKey]*tracker)
	c.books = nil
	c.mu.Unlock()

	for _, t := range trackers {
		t.stop()
	}

	c.cacheMu.Lock()
	c.classifications = make(map[string][]Classification)
	c.cacheMu.Unlock()

	if c.hints != nil {
		c.hintsMu.Lock()
		for _, key := range hintKeys {
			if err := c.hints.Delete(context.Background(), key); err != nil {
				c.logger.Warn("failed to clear job hints", "key", key, "error", err)
			}
		}
		c.hintsMu.Unlock()
	}

	c.logger.Debug("coordinator reset", "trackers", len(trackers))
	c.emit(Event{Type: EventBooks})
}

// Close stops every tracker and waits for watcher goroutines to exit.
// Persisted hints are kept so a later Resume can re-attach.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		c.closed = true
		trackers := c.trackers
		c.trackers = make(map[trackerKey]*tracker)
		c.mu.Unlock()

		for _, t := range trackers {
			t.stop()
		}
		c.wg.Wait()

		c.subMu.Lock()
		for id, ch := range c.subs {
			close(ch)
			delete(c.subs, id)
		}
		c.subs = nil
		c.subMu.Unlock()
	})
	return nil
}

// spawn runs fn on a tracked goroutine unless the coordinator is closed.
func (c *Coordinator) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

// reportError surfaces the backend's detail, or fallback, to the user.
func (c *Coordinator) reportError(err error, fallback string) {
	c.notifier.Notify(notify.LevelError, api.Detail(err, fallback))
}
