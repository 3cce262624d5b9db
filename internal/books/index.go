package books

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/progress"
)

// Completion sources reported by Watch.Source.
const (
	SourceSocket = "socket"
	SourcePoll   = "poll"
)

// Watch follows one indexing job until either its socket or the status
// poll sees it finish.
type Watch struct {
	BookID string

	once   sync.Once
	done   chan struct{}
	source string
}

// Done is closed once the watch has finished or been cancelled.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Wait blocks until the watch finishes or ctx is done.
func (w *Watch) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Source reports which path observed completion: SourceSocket, SourcePoll,
// or "" if the watch was cancelled or the book was deleted. Valid after
// Done is closed.
func (w *Watch) Source() string {
	<-w.done
	return w.source
}

// IndexBook asks the backend to chunk and index a book. A chunkSize of 0
// uses DefaultChunkSize.
//
// Completion is observed two ways at once: the index-progress socket sends
// "done", and a status poll runs every IndexPollInterval until the book is
// no longer Indexing or Processing. Whichever sees it first finishes the
// watch; the other is cancelled.
func (c *Coordinator) IndexBook(ctx context.Context, bookID string, chunkSize int) (*Watch, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, chunkSize)
	}

	// Reserve before sending so a concurrent start is refused locally.
	key := trackerKey{bookID, progress.Indexing}
	t, err := c.track(key, Progress{BookID: bookID, Kind: progress.Indexing, StartedAt: time.Now()})
	if err != nil {
		return nil, err
	}

	path := api.Pathf("/chunks/index-book/%s?chunk_size=%d", bookID, chunkSize)
	if err := c.client.Post(ctx, path, nil, nil); err != nil {
		if c.remove(key, t) {
			t.stop()
		}
		c.reportError(err, "Failed to start indexing")
		return nil, fmt.Errorf("failed to index book: %w", err)
	}

	c.logger.Info("indexing started", "book_id", bookID, "chunk_size", chunkSize)
	c.notifier.Notify(notify.LevelInfo, "Indexing started for "+c.displayName(bookID))

	w := &Watch{BookID: bookID, done: make(chan struct{})}
	finish := func(source string) {
		w.once.Do(func() {
			w.source = source
			removed := c.remove(key, t)
			t.stop()
			if removed {
				c.emit(Event{Type: EventRemoved, BookID: bookID, Kind: progress.Indexing})
			}
			if source != "" {
				c.logger.Info("indexing complete", "book_id", bookID, "source", source)
				c.notifier.Notify(notify.LevelSuccess, "Indexing complete for "+c.displayName(bookID))
				c.refetch()
			}
			close(w.done)
		})
	}

	stream, err := c.dialer.Dial(ctx, progress.Indexing, bookID)
	if err != nil {
		// The poll still covers this job.
		c.logger.Warn("index socket unavailable, relying on status poll", "book_id", bookID, "error", err)
	} else if !t.attach(stream) {
		stream.Close()
	} else {
		c.spawn(func() { c.watchIndexSocket(key, t, stream, finish) })
	}

	if !c.spawn(func() { c.pollIndexStatus(t.ctx, bookID, finish) }) {
		finish("")
	}
	return w, nil
}

func (c *Coordinator) watchIndexSocket(key trackerKey, t *tracker, stream progress.Stream, finish func(string)) {
	for {
		select {
		case <-t.ctx.Done():
			return
		case msg, ok := <-stream.Messages():
			if !ok {
				if t.ctx.Err() == nil {
					c.logger.Warn("index socket ended, waiting on status poll", "book_id", key.bookID, "error", stream.Err())
				}
				return
			}
			c.update(key, t, msg)
			if msg.Complete() {
				finish(SourceSocket)
				return
			}
		}
	}
}

// pollIndexStatus checks the book's status every poll interval, starting
// one interval after indexing began. Poll requests skip the client's error
// interception; the first failed check is reported once instead.
func (c *Coordinator) pollIndexStatus(ctx context.Context, bookID string, finish func(string)) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		finish("")
		return
	}

	quiet := api.Quiet(ctx)
	warned, deleted := false, false
	err := retry.Do(
		func() error {
			var b Book
			err := c.client.Get(quiet, api.Pathf("/books/%s", bookID), &b)
			if api.IsNotFound(err) {
				deleted = true
				return retry.Unrecoverable(err)
			}
			if err != nil {
				if !warned && ctx.Err() == nil {
					warned = true
					c.notifier.Notify(notify.LevelWarning, fmt.Sprintf("Status check failed for %s: %s", c.displayName(bookID), api.Detail(err, err.Error())))
				}
				return err
			}
			if b.Status.Busy() {
				return fmt.Errorf("book %s is still %s", bookID, b.Status)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(c.pollInterval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	switch {
	case deleted:
		c.logger.Warn("book deleted while indexing", "book_id", bookID)
		c.notifier.Notify(notify.LevelWarning, "Indexing stopped: "+c.displayName(bookID)+" no longer exists")
		c.refetch()
		finish("")
	case err != nil:
		finish("")
	default:
		finish(SourcePoll)
	}
}
