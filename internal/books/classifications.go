package books

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/reviews"
)

// ErrEmptyUpdate is returned when a review update changes nothing.
var ErrEmptyUpdate = errors.New("review update has no fields")

// GetBookClassifications returns the per-chunk labels for a book. Results
// are cached for the life of the coordinator and concurrent callers share
// one request. A book with no classifications yields an empty slice.
func (c *Coordinator) GetBookClassifications(ctx context.Context, bookID string) ([]Classification, error) {
	c.cacheMu.Lock()
	cached, ok := c.classifications[bookID]
	c.cacheMu.Unlock()
	if ok {
		return cached, nil
	}

	// The shared request runs on the coordinator's context so one caller
	// giving up does not fail the others.
	ch := c.flights.DoChan(bookID, func() (any, error) {
		c.cacheMu.Lock()
		cached, ok := c.classifications[bookID]
		c.cacheMu.Unlock()
		if ok {
			return cached, nil
		}

		var raw json.RawMessage
		err := c.client.Get(c.ctx, api.Pathf("/classification/classifications/%s", bookID), &raw)
		var list []Classification
		switch {
		case api.IsNotFound(err):
			list = []Classification{}
		case err != nil:
			return nil, err
		default:
			if list, err = decodeClassifications(raw); err != nil {
				return nil, fmt.Errorf("failed to decode classifications: %w", err)
			}
			if list == nil {
				list = []Classification{}
			}
		}

		c.cacheMu.Lock()
		c.classifications[bookID] = list
		c.cacheMu.Unlock()
		return list, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("failed to get classifications for %s: %w", bookID, res.Err)
		}
		c.logger.Debug("classifications loaded", "book_id", bookID, "shared", res.Shared)
		return res.Val.([]Classification), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InvalidateClassifications drops the cached classifications for a book.
func (c *Coordinator) InvalidateClassifications(bookID string) {
	c.cacheMu.Lock()
	delete(c.classifications, bookID)
	c.cacheMu.Unlock()
	c.flights.Forget(bookID)
}

// ListReviewOutcomes returns the review outcomes for a book. A book with no
// outcomes yields an empty slice.
func (c *Coordinator) ListReviewOutcomes(ctx context.Context, bookID string) ([]reviews.Outcome, error) {
	var outcomes []reviews.Outcome
	err := c.client.Get(ctx, api.Pathf("/review_outcomes/book/%s", bookID), &outcomes)
	if api.IsNotFound(err) {
		return []reviews.Outcome{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list review outcomes: %w", err)
	}
	return outcomes, nil
}

// UpdateReviewOutcome edits one review type's fields on an outcome.
// Callers refetch the outcomes afterwards.
func (c *Coordinator) UpdateReviewOutcome(ctx context.Context, outcomeID string, t reviews.Type, u reviews.Update) error {
	if !t.Valid() {
		return fmt.Errorf("unknown review type %q", string(t))
	}
	if u.Empty() {
		return ErrEmptyUpdate
	}
	if err := c.client.Put(ctx, api.Pathf("/review_outcomes/%s/%s", outcomeID, string(t)), u, nil); err != nil {
		c.reportError(err, "Failed to update review")
		return fmt.Errorf("failed to update review outcome: %w", err)
	}
	c.notifier.Notify(notify.LevelSuccess, t.Title()+" updated")
	return nil
}

// DeleteReviewOutcome removes one review type from an outcome.
// Callers refetch the outcomes afterwards.
func (c *Coordinator) DeleteReviewOutcome(ctx context.Context, outcomeID string, t reviews.Type) error {
	if !t.Valid() {
		return fmt.Errorf("unknown review type %q", string(t))
	}
	if err := c.client.Delete(ctx, api.Pathf("/review_outcomes/%s/%s", outcomeID, string(t)), nil); err != nil {
		c.reportError(err, "Failed to delete review")
		return fmt.Errorf("failed to delete review outcome: %w", err)
	}
	c.notifier.Notify(notify.LevelSuccess, t.Title()+" deleted")
	return nil
}
