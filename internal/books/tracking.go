package books

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/progress"
	"github.com/jackzampolin/docdesk/internal/state"
)

// hintKeys maps persisted job kinds to their state keys. Indexing is not
// persisted; its status poll makes it self-healing.
var hintKeys = map[progress.Kind]string{
	progress.Classification: state.KeyActiveClassifications,
	progress.Analysis:       state.KeyActiveAnalyses,
}

var errSocketClosed = errors.New("progress socket closed before the job finished")

// tracker is one job's live state. progress is guarded by Coordinator.mu.
type tracker struct {
	progress Progress
	ctx      context.Context
	cancel   context.CancelFunc

	mu        sync.Mutex
	stream    progress.Stream
	stopped   bool
	closeOnce sync.Once
}

// attach binds the stream unless the tracker was stopped meanwhile.
func (t *tracker) attach(s progress.Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stream = s
	return true
}

// closeStream closes the socket at most once.
func (t *tracker) closeStream() {
	t.mu.Lock()
	s := t.stream
	t.mu.Unlock()
	if s == nil {
		return
	}
	t.closeOnce.Do(func() { _ = s.Close() })
}

// stop cancels the tracker's goroutines and closes its socket.
func (t *tracker) stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancel()
	t.closeStream()
}

// track inserts a new tracker, failing if one exists for the same key.
func (c *Coordinator) track(key trackerKey, initial Progress) (*tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}
	if _, ok := c.trackers[key]; ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyTracking, key.kind, key.bookID)
	}
	ctx, cancel := context.WithCancel(c.ctx)
	t := &tracker{progress: initial, ctx: ctx, cancel: cancel}
	c.trackers[key] = t
	return t, nil
}

// remove deletes the tracker if it is still the one registered for key.
func (c *Coordinator) remove(key trackerKey, t *tracker) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trackers[key] != t {
		return false
	}
	delete(c.trackers, key)
	return true
}

// reserve registers a tracker for every kind at once, or for none if any of
// them is already tracked for the book.
func (c *Coordinator) reserve(bookID string, kinds []progress.Kind) ([]*tracker, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCoordinatorClosed
	}
	for _, kind := range kinds {
		if _, ok := c.trackers[trackerKey{bookID, kind}]; ok {
			return nil, fmt.Errorf("%w: %s on %s", ErrAlreadyTracking, kind, bookID)
		}
	}

	now := time.Now()
	reserved := make([]*tracker, len(kinds))
	for i, kind := range kinds {
		ctx, cancel := context.WithCancel(c.ctx)
		reserved[i] = &tracker{
			progress: Progress{BookID: bookID, Kind: kind, StartedAt: now},
			ctx:      ctx,
			cancel:   cancel,
		}
		c.trackers[trackerKey{bookID, kind}] = reserved[i]
	}
	return reserved, nil
}

// release drops trackers reserved for a job the backend refused.
func (c *Coordinator) release(bookID string, kinds []progress.Kind, reserved []*tracker) {
	for i, kind := range kinds {
		if c.remove(trackerKey{bookID, kind}, reserved[i]) {
			reserved[i].stop()
		}
		c.persistHints(kind)
	}
}

// StartClassification asks the backend to classify and/or analyse a book
// and watches each requested job's progress socket. The trackers are
// reserved before the request is sent, so concurrent starts for the same
// book and kind reach the backend once. It fails only if no requested job
// could be watched.
func (c *Coordinator) StartClassification(ctx context.Context, bookID string, runClassification, runAnalysis bool) error {
	var kinds []progress.Kind
	if runClassification {
		kinds = append(kinds, progress.Classification)
	}
	if runAnalysis {
		kinds = append(kinds, progress.Analysis)
	}
	if len(kinds) == 0 {
		return ErrNoJobs
	}

	reserved, err := c.reserve(bookID, kinds)
	if err != nil {
		return err
	}

	body := map[string]bool{
		"run_classification": runClassification,
		"run_analysis":       runAnalysis,
	}
	if err := c.client.Post(ctx, api.Pathf("/classification/%s/start", bookID), body, nil); err != nil {
		c.release(bookID, kinds, reserved)
		c.reportError(err, "Failed to start processing")
		return fmt.Errorf("failed to start classification: %w", err)
	}

	c.logger.Info("processing started", "book_id", bookID, "classification", runClassification, "analysis", runAnalysis)
	c.notifier.Notify(notify.LevelSuccess, "Processing started for "+c.displayName(bookID))

	for i, kind := range kinds {
		initial := reserved[i].progress
		c.persistHints(kind)
		c.emit(Event{Type: EventProgress, BookID: bookID, Kind: kind, Progress: &initial})
	}

	var failed atomic.Int32
	var g errgroup.Group
	for i, kind := range kinds {
		key, t := trackerKey{bookID, kind}, reserved[i]
		g.Go(func() error {
			if err := c.attach(ctx, key, t); err != nil {
				failed.Add(1)
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if int(failed.Load()) == len(kinds) {
			return fmt.Errorf("failed to watch progress: %w", err)
		}
		c.logger.Warn("some progress sockets failed", "book_id", bookID, "failed", failed.Load(), "error", err)
	}
	return nil
}

// attach dials the job socket and starts its watcher. A dial failure is
// terminal for the job.
func (c *Coordinator) attach(ctx context.Context, key trackerKey, t *tracker) error {
	stream, err := c.dialer.Dial(ctx, key.kind, key.bookID)
	if err != nil {
		c.fail(key, t, err)
		return err
	}
	if !t.attach(stream) {
		stream.Close()
		return nil
	}
	if !c.spawn(func() { c.watch(key, t, stream) }) {
		t.stop()
	}
	return nil
}

func (c *Coordinator) watch(key trackerKey, t *tracker, stream progress.Stream) {
	for {
		select {
		case <-t.ctx.Done():
			t.closeStream()
			return
		case msg, ok := <-stream.Messages():
			if !ok {
				if t.ctx.Err() != nil {
					return
				}
				err := stream.Err()
				if err == nil {
					err = errSocketClosed
				}
				c.fail(key, t, err)
				return
			}
			c.update(key, t, msg)
			if msg.Complete() {
				t.closeStream()
				c.complete(key, t)
				return
			}
		}
	}
}

func (c *Coordinator) update(key trackerKey, t *tracker, msg progress.Message) {
	c.mu.Lock()
	if c.trackers[key] != t {
		c.mu.Unlock()
		return
	}
	t.progress.Percent = min(100, max(0, msg.Progress))
	if msg.Finished {
		t.progress.Percent = 100
	}
	if msg.Total != nil {
		t.progress.Total = msg.Total
	}
	if msg.Done != nil {
		t.progress.Done = msg.Done
	}
	p := t.progress
	c.mu.Unlock()

	c.persistHints(key.kind)
	c.emit(Event{Type: EventProgress, BookID: key.bookID, Kind: key.kind, Progress: &p})
}

// complete keeps the finished tracker visible for the completion delay,
// then removes it and reconciles with the backend.
func (c *Coordinator) complete(key trackerKey, t *tracker) {
	c.logger.Info("job complete", "book_id", key.bookID, "kind", string(key.kind))

	if c.completionDelay > 0 {
		timer := time.NewTimer(c.completionDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-t.ctx.Done():
			return
		}
	}

	if !c.remove(key, t) {
		return
	}
	t.stop()
	c.persistHints(key.kind)
	c.emit(Event{Type: EventRemoved, BookID: key.bookID, Kind: key.kind})
	c.refetch()
}

// fail ends a job whose socket could not be opened or dropped early.
func (c *Coordinator) fail(key trackerKey, t *tracker, err error) {
	if !c.remove(key, t) {
		return
	}
	t.stop()
	c.persistHints(key.kind)

	c.logger.Warn("progress tracking failed", "book_id", key.bookID, "kind", string(key.kind), "error", err)
	c.notifier.Notify(notify.LevelError, fmt.Sprintf("Lost %s progress for %s", key.kind, c.displayName(key.bookID)))
	c.emit(Event{Type: EventFailed, BookID: key.bookID, Kind: key.kind, Error: err.Error()})
	c.refetch()
}

// persistHints writes the current trackers of kind to the hint store.
func (c *Coordinator) persistHints(kind progress.Kind) {
	key, ok := hintKeys[kind]
	if !ok || c.hints == nil {
		return
	}

	c.hintsMu.Lock()
	defer c.hintsMu.Unlock()

	c.mu.Lock()
	active := make(map[string]Progress)
	for k, t := range c.trackers {
		if k.kind == kind {
			active[k.bookID] = t.progress
		}
	}
	c.mu.Unlock()

	var err error
	if len(active) == 0 {
		err = c.hints.Delete(context.Background(), key)
	} else {
		err = c.hints.PutJSON(context.Background(), key, active)
	}
	if err != nil {
		c.logger.Warn("failed to persist job hints", "key", key, "error", err)
	}
}

// Resume re-attaches to jobs recorded in the hint store by a previous run.
// Hints for books the backend no longer reports as busy are dropped, as are
// jobs whose socket cannot be dialled. It returns how many jobs are watched.
func (c *Coordinator) Resume(ctx context.Context) (int, error) {
	if c.hints == nil {
		return 0, nil
	}

	listed := c.FetchBooks(ctx) == nil

	type resumed struct {
		key trackerKey
		t   *tracker
	}
	var pending []resumed

	for kind, hintKey := range hintKeys {
		var active map[string]Progress
		if err := c.hints.GetJSON(ctx, hintKey, &active); err != nil {
			if errors.Is(err, state.ErrNotFound) {
				continue
			}
			return 0, fmt.Errorf("failed to load job hints: %w", err)
		}

		for bookID, p := range active {
			if listed {
				if b, ok := c.Book(bookID); !ok || !b.Status.Busy() {
					c.logger.Debug("dropping stale job hint", "book_id", bookID, "kind", string(kind))
					continue
				}
			}
			p.BookID, p.Kind = bookID, kind
			key := trackerKey{bookID, kind}
			t, err := c.track(key, p)
			if err != nil {
				if errors.Is(err, ErrAlreadyTracking) {
					continue
				}
				return 0, err
			}
			pending = append(pending, resumed{key, t})
		}
		c.persistHints(kind)
	}

	var attached atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, r := range pending {
		g.Go(func() error {
			if err := c.attach(gctx, r.key, r.t); err == nil {
				attached.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(attached.Load())
	if len(pending) > 0 {
		c.logger.Info("resumed job tracking", "jobs", n, "dropped", len(pending)-n)
	}
	return n, nil
}
