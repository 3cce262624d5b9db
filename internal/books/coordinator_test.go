package books

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.uber.org/goleak"

	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/progress"
	"github.com/jackzampolin/docdesk/internal/reviews"
	"github.com/jackzampolin/docdesk/internal/state"
	"github.com/jackzampolin/docdesk/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestStatus_Busy(t *testing.T) {
	busy := map[Status]bool{
		StatusIndexing:    true,
		StatusProcessing:  true,
		StatusPending:     false,
		StatusUnprocessed: false,
		StatusClassified:  false,
		StatusAnalyzed:    false,
		StatusProcessed:   false,
		StatusAssigned:    false,
	}
	for status, want := range busy {
		if got := status.Busy(); got != want {
			t.Errorf("%s.Busy() = %v, want %v", status, got, want)
		}
	}
}

func TestFetchBooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	events, cancel := h.coord.Subscribe(4)
	defer cancel()

	if err := h.coord.FetchBooks(ctx); err != nil {
		t.Fatalf("FetchBooks() error = %v", err)
	}
	got := h.coord.Books()
	if len(got) != 2 || got[0].ID != "b1" || got[1].Status != StatusProcessing {
		t.Fatalf("unexpected books: %+v", got)
	}
	if b, ok := h.coord.Book("b2"); !ok || b.DocName != "Budget" {
		t.Errorf("Book(b2) = %+v, %v", b, ok)
	}
	if _, ok := h.coord.Book("missing"); ok {
		t.Error("Book(missing) should not be found")
	}

	select {
	case ev := <-events:
		if ev.Type != EventBooks {
			t.Errorf("event type = %s, want books", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("no books event")
	}

	h.backend.JSON("GET", "/books/", 500, map[string]string{"detail": "db down"})
	if err := h.coord.FetchBooks(ctx); err == nil {
		t.Error("expected FetchBooks error to propagate")
	}
	if len(h.coord.Books()) != 2 {
		t.Error("failed fetch should keep the previous list")
	}
}

func TestStartClassification_InsertsOneTracker(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})

	if err := h.coord.StartClassification(context.Background(), "b1", true, false); err != nil {
		t.Fatalf("StartClassification() error = %v", err)
	}

	got := h.coord.Progress()
	want := []Progress{{BookID: "b1", Kind: progress.Classification, Percent: 0}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Progress{}, "StartedAt")); diff != "" {
		t.Errorf("Progress() mismatch (-want +got):\n%s", diff)
	}
	if got[0].Total != nil || got[0].Done != nil {
		t.Error("new tracker should have nil total and done")
	}

	var body map[string]bool
	if err := json.Unmarshal(h.backend.LastBody("POST", "/classification/b1/start"), &body); err != nil {
		t.Fatalf("bad request body: %v", err)
	}
	if !body["run_classification"] || body["run_analysis"] {
		t.Errorf("unexpected start body: %v", body)
	}

	if hints := h.hints(t, state.KeyActiveClassifications); len(hints) != 1 {
		t.Errorf("expected 1 persisted classification hint, got %v", hints)
	}
	if h.dialer.dialed(progress.Analysis, "b1") != 0 {
		t.Error("analysis socket should not be dialed")
	}

	err := h.coord.StartClassification(context.Background(), "b1", true, false)
	if !errors.Is(err, ErrAlreadyTracking) {
		t.Errorf("expected ErrAlreadyTracking, got %v", err)
	}
	if hits := h.backend.Hits("POST", "/classification/b1/start"); hits != 1 {
		t.Errorf("duplicate start should not reach the backend, got %d hits", hits)
	}
}

func TestStartClassification_BothJobs(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})

	if err := h.coord.StartClassification(context.Background(), "b1", true, true); err != nil {
		t.Fatalf("StartClassification() error = %v", err)
	}

	got := h.coord.Progress()
	if len(got) != 2 || got[0].Kind != progress.Analysis || got[1].Kind != progress.Classification {
		t.Fatalf("expected analysis and classification trackers, got %+v", got)
	}
	h.dialer.stream(t, progress.Analysis, "b1")
	h.dialer.stream(t, progress.Classification, "b1")
}

func TestStartClassification_Errors(t *testing.T) {
	h := newHarness(t)

	if err := h.coord.StartClassification(context.Background(), "b1", false, false); !errors.Is(err, ErrNoJobs) {
		t.Errorf("expected ErrNoJobs, got %v", err)
	}

	h.backend.JSON("POST", "/classification/b1/start", 400, map[string]string{"detail": "Invalid book ID format"})
	if err := h.coord.StartClassification(context.Background(), "b1", true, false); err == nil {
		t.Fatal("expected backend error")
	}
	if len(h.coord.Progress()) != 0 {
		t.Error("failed start should not insert trackers")
	}
	notes := h.notes.Notes()
	if len(notes) == 0 || notes[len(notes)-1].Msg != "Invalid book ID format" {
		t.Errorf("expected backend detail notified, got %+v", notes)
	}
}

func TestCompletion_RemovesAfterDelayAndClosesOnce(t *testing.T) {
	delay := 150 * time.Millisecond
	h := newHarness(t, withDelay(delay))
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})

	if err := h.coord.StartClassification(context.Background(), "b1", true, false); err != nil {
		t.Fatalf("StartClassification() error = %v", err)
	}
	stream := h.dialer.stream(t, progress.Classification, "b1")

	stream.msgs <- progress.Message{Progress: 40, Total: intPtr(10), Done: intPtr(4)}
	ok := testutil.Eventually(time.Second, func() bool {
		p := h.coord.Progress()
		return len(p) == 1 && p[0].Percent == 40
	})
	if !ok {
		t.Fatalf("progress not updated: %+v", h.coord.Progress())
	}
	p := h.coord.Progress()[0]
	if *p.Total != 10 || *p.Done != 4 {
		t.Errorf("counters = %d/%d, want 4/10", *p.Done, *p.Total)
	}

	fetchesBefore := h.backend.Hits("GET", "/books/")
	completedAt := time.Now()
	stream.msgs <- progress.Message{Progress: 100}

	if !testutil.Eventually(time.Second, func() bool { return stream.closes.Load() == 1 }) {
		t.Fatal("socket was not closed on completion")
	}
	if time.Since(completedAt) < delay && !h.coord.Tracking("b1", progress.Classification) {
		t.Error("tracker removed before the completion delay")
	}

	h.waitNoTracker(t, "b1", progress.Classification)
	if elapsed := time.Since(completedAt); elapsed < delay {
		t.Errorf("tracker removed after %s, want at least %s", elapsed, delay)
	}
	if !testutil.Eventually(time.Second, func() bool { return h.backend.Hits("GET", "/books/") > fetchesBefore }) {
		t.Error("expected a refetch after completion")
	}
	if hints := h.hints(t, state.KeyActiveClassifications); len(hints) != 0 {
		t.Errorf("hints should be cleared after completion, got %v", hints)
	}

	h.coord.Close()
	if n := stream.closes.Load(); n != 1 {
		t.Errorf("socket closed %d times, want exactly 1", n)
	}
}

func TestSocketDrop_FailsJob(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})

	events, cancel := h.coord.Subscribe(16)
	defer cancel()

	if err := h.coord.StartClassification(context.Background(), "b1", false, true); err != nil {
		t.Fatalf("StartClassification() error = %v", err)
	}
	stream := h.dialer.stream(t, progress.Analysis, "b1")
	stream.drop(errors.New("connection reset"))

	h.waitNoTracker(t, "b1", progress.Analysis)

	var failed bool
	for !failed {
		select {
		case ev := <-events:
			failed = ev.Type == EventFailed && ev.Kind == progress.Analysis && strings.Contains(ev.Error, "connection reset")
		case <-time.After(time.Second):
			t.Fatal("no failed event")
		}
	}
	if h.notes.Count(notify.LevelError) == 0 {
		t.Error("expected an error notification")
	}
	if stream.closes.Load() != 1 {
		t.Errorf("dropped socket closed %d times, want 1", stream.closes.Load())
	}
}

func TestStartClassification_DialFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})
	h.dialer.failKind(progress.Classification, errors.New("refused"))

	err := h.coord.StartClassification(context.Background(), "b1", true, false)
	if err == nil {
		t.Fatal("expected dial error to be reported")
	}
	if h.coord.Tracking("b1", progress.Classification) {
		t.Error("tracker should be dropped when the socket cannot be dialed")
	}
}

func TestGetBookClassifications_Cached(t *testing.T) {
	h := newHarness(t)

	var calls atomic.Int32
	h.backend.Handle("GET", "/classification/classifications/b1", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		testutil.JSONHandler(200, []Classification{{ChunkID: "c1", Label: "Policy", Confidence: 0.9}})(w, r)
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.coord.GetBookClassifications(ctx, "b1")
			if err != nil || len(got) != 1 {
				t.Errorf("GetBookClassifications() = %v, %v", got, err)
			}
		}()
	}
	wg.Wait()

	if _, err := h.coord.GetBookClassifications(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	h.coord.InvalidateClassifications("b1")
	if _, err := h.coord.GetBookClassifications(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("backend called %d times after invalidate, want 2", n)
	}
}

func TestGetBookClassifications_NotFoundIsEmpty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.coord.GetBookClassifications(ctx, "nothing")
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", got)
	}

	if _, err := h.coord.GetBookClassifications(ctx, "nothing"); err != nil {
		t.Fatal(err)
	}
	if n := h.backend.Hits("GET", "/classification/classifications/nothing"); n != 1 {
		t.Errorf("404 result should be cached, got %d requests", n)
	}

	h.backend.JSON("GET", "/classification/classifications/wrapped", 200, map[string]any{
		"classifications": []map[string]any{{"chunk_id": "c9", "label": "Budget"}},
	})
	got, err = h.coord.GetBookClassifications(ctx, "wrapped")
	if err != nil || len(got) != 1 || got[0].ChunkID != "c9" {
		t.Errorf("wrapped response = %v, %v", got, err)
	}
}

func TestIndexBook_PollFallback(t *testing.T) {
	h := newHarness(t, withPoll(20*time.Millisecond))

	var polls atomic.Int32
	h.backend.Handle("GET", "/books/b1", func(w http.ResponseWriter, r *http.Request) {
		status := "Indexing"
		if polls.Add(1) > 2 {
			status = "Unprocessed"
		}
		testutil.JSONHandler(200, testutil.BookJSON("b1", "Annual Report", status))(w, r)
	})
	h.backend.Handle("POST", "/chunks/index-book/b1", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("chunk_size"); got != "2000" {
			t.Errorf("chunk_size = %q, want 2000", got)
		}
		testutil.JSONHandler(200, map[string]string{"message": "ok"})(w, r)
	})

	watch, err := h.coord.IndexBook(context.Background(), "b1", 2000)
	if err != nil {
		t.Fatalf("IndexBook() error = %v", err)
	}
	if !h.coord.Tracking("b1", progress.Indexing) {
		t.Error("expected an indexing tracker while the job runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := watch.Wait(ctx); err != nil {
		t.Fatalf("watch did not finish with a silent socket: %v", err)
	}
	if watch.Source() != SourcePoll {
		t.Errorf("Source() = %q, want poll", watch.Source())
	}
	if polls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls.Load())
	}
	if h.coord.Tracking("b1", progress.Indexing) {
		t.Error("indexing tracker should be removed")
	}
	stream := h.dialer.stream(t, progress.Indexing, "b1")
	if stream.closes.Load() != 1 {
		t.Errorf("index socket closed %d times, want 1", stream.closes.Load())
	}
	if h.backend.Hits("GET", "/books/") == 0 {
		t.Error("expected the book list to be refetched")
	}
}

func TestIndexBook_SocketWins(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/chunks/index-book/b1", 200, map[string]string{"message": "ok"})

	watch, err := h.coord.IndexBook(context.Background(), "b1", 0)
	if err != nil {
		t.Fatalf("IndexBook() error = %v", err)
	}
	stream := h.dialer.stream(t, progress.Indexing, "b1")
	stream.msgs <- progress.Message{Progress: 100, Finished: true}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := watch.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if watch.Source() != SourceSocket {
		t.Errorf("Source() = %q, want socket", watch.Source())
	}
	if h.backend.Hits("GET", "/books/b1") != 0 {
		t.Error("poll should not have run")
	}
	if h.notes.Count(notify.LevelSuccess) == 0 {
		t.Error("expected a completion notification")
	}
}

func TestIndexBook_DialFailureStillPolls(t *testing.T) {
	h := newHarness(t, withPoll(10*time.Millisecond))
	h.backend.JSON("POST", "/chunks/index-book/b1", 200, map[string]string{"message": "ok"})
	h.backend.JSON("GET", "/books/b1", 200, testutil.BookJSON("b1", "Annual Report", "Classified"))
	h.dialer.failKind(progress.Indexing, errors.New("refused"))

	watch, err := h.coord.IndexBook(context.Background(), "b1", 1000)
	if err != nil {
		t.Fatalf("IndexBook() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := watch.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if watch.Source() != SourcePoll {
		t.Errorf("Source() = %q, want poll", watch.Source())
	}
}

func TestIndexBook_InvalidChunkSize(t *testing.T) {
	h := newHarness(t)
	for _, size := range []int{999, 8001, -5} {
		if _, err := h.coord.IndexBook(context.Background(), "b1", size); !errors.Is(err, ErrInvalidChunkSize) {
			t.Errorf("IndexBook(%d) error = %v, want ErrInvalidChunkSize", size, err)
		}
	}
	if h.backend.TotalHits() != 0 {
		t.Errorf("invalid chunk sizes should not reach the backend, got %d hits", h.backend.TotalHits())
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})
	h.backend.JSON("POST", "/chunks/index-book/b2", 200, map[string]string{"message": "ok"})

	if err := h.coord.FetchBooks(ctx); err != nil {
		t.Fatal(err)
	}
	if err := h.coord.StartClassification(ctx, "b1", true, true); err != nil {
		t.Fatal(err)
	}
	watch, err := h.coord.IndexBook(ctx, "b2", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.coord.GetBookClassifications(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	cls := h.dialer.stream(t, progress.Classification, "b1")

	h.coord.Reset()

	if len(h.coord.Books()) != 0 {
		t.Error("books should be cleared")
	}
	if len(h.coord.Progress()) != 0 {
		t.Errorf("trackers should be cleared, got %+v", h.coord.Progress())
	}
	if h.hints(t, state.KeyActiveClassifications) != nil || h.hints(t, state.KeyActiveAnalyses) != nil {
		t.Error("persisted hints should be cleared")
	}
	if cls.closes.Load() != 1 {
		t.Errorf("classification socket closed %d times, want 1", cls.closes.Load())
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := watch.Wait(waitCtx); err != nil {
		t.Fatalf("index watch should end on reset: %v", err)
	}
	if watch.Source() != "" {
		t.Errorf("cancelled watch Source() = %q, want empty", watch.Source())
	}

	if _, err := h.coord.GetBookClassifications(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	if n := h.backend.Hits("GET", "/classification/classifications/b1"); n != 2 {
		t.Errorf("cache should be emptied by reset, got %d requests", n)
	}
}

func TestResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	hints := map[string]Progress{
		"b1": {Percent: 10},
		"b2": {Percent: 40, Total: intPtr(5), Done: intPtr(2)},
	}
	if err := h.store.PutJSON(ctx, state.KeyActiveClassifications, hints); err != nil {
		t.Fatal(err)
	}

	n, err := h.coord.Resume(ctx)
	if err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("Resume() = %d, want 1 (b1 is no longer busy)", n)
	}

	got := h.coord.Progress()
	want := []Progress{{BookID: "b2", Kind: progress.Classification, Percent: 40, Total: intPtr(5), Done: intPtr(2)}}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Progress{}, "StartedAt")); diff != "" {
		t.Errorf("Progress() mismatch (-want +got):\n%s", diff)
	}
	if persisted := h.hints(t, state.KeyActiveClassifications); len(persisted) != 1 {
		t.Errorf("stale hint should be dropped from the store, got %v", persisted)
	}

	h.dialer.stream(t, progress.Classification, "b2").msgs <- progress.Message{Progress: 100}
	h.waitNoTracker(t, "b2", progress.Classification)
}

func TestCreateBook_RejectsNonPDFWithoutRequest(t *testing.T) {
	h := newHarness(t)

	data := []byte("just some notes")
	_, err := h.coord.CreateBook(context.Background(), Upload{
		FileName: "notes.txt",
		File:     bytes.NewReader(data),
		Size:     int64(len(data)),
		DocName:  "Notes",
	})
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
	if hits := h.backend.TotalHits(); hits != 0 {
		t.Errorf("rejected upload made %d requests, want 0", hits)
	}
	if h.notes.Count(notify.LevelError) != 1 {
		t.Error("expected the validation error to be notified")
	}
}

func TestCreateBook_Uploads(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("POST", "/books/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart body: %v", err)
		}
		form := map[string]string{
			"doc_name": r.FormValue("doc_name"),
			"author":   r.FormValue("author"),
			"category": r.FormValue("category"),
		}
		want := map[string]string{"doc_name": "white-paper", "author": "Ministry", "category": "Policy"}
		if diff := cmp.Diff(want, form); diff != "" {
			t.Errorf("form mismatch (-want +got):\n%s", diff)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}
		testutil.JSONHandler(201, map[string]string{"_id": "b3"})(w, r)
	})

	pdf := testutil.MinimalPDF()
	res, err := h.coord.CreateBook(context.Background(), Upload{
		FileName: "/tmp/white-paper.pdf",
		File:     bytes.NewReader(pdf),
		Size:     int64(len(pdf)),
		Author:   "Ministry",
		Category: "Policy",
	})
	if err != nil {
		t.Fatalf("CreateBook() error = %v", err)
	}
	if res.PageCount != 1 {
		t.Errorf("PageCount = %d", res.PageCount)
	}
	if h.backend.Hits("POST", "/books/") != 1 {
		t.Error("expected one upload request")
	}
	if h.backend.Hits("GET", "/books/") != 1 {
		t.Error("expected a refetch after upload")
	}
}

func TestAssignAndFeedback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.backend.JSON("PUT", "/books/b1/assign", 200, map[string]string{"message": "ok"})
	h.backend.JSON("POST", "/books/b1/feedback", 200, map[string]string{"message": "ok"})

	if err := h.coord.AssignDepartments(ctx, "b1", []string{"Legal", "Finance"}); err != nil {
		t.Fatalf("AssignDepartments() error = %v", err)
	}
	var depts []string
	json.Unmarshal(h.backend.LastBody("PUT", "/books/b1/assign"), &depts)
	if diff := cmp.Diff([]string{"Legal", "Finance"}, depts); diff != "" {
		t.Errorf("assign body mismatch (-want +got):\n%s", diff)
	}

	if err := h.coord.AddFeedback(ctx, "b1", "Looks good", "Legal"); err != nil {
		t.Fatalf("AddFeedback() error = %v", err)
	}
	var fb map[string]string
	json.Unmarshal(h.backend.LastBody("POST", "/books/b1/feedback"), &fb)
	if fb["comment"] != "Looks good" || fb["department"] != "Legal" {
		t.Errorf("unexpected feedback body: %v", fb)
	}
	if h.backend.Hits("GET", "/books/") != 2 {
		t.Errorf("expected a refetch after each write, got %d", h.backend.Hits("GET", "/books/"))
	}

	if err := h.coord.AddFeedback(ctx, "missing", "x", "y"); err == nil {
		t.Error("expected error for unknown book")
	}
}

func TestReviewOutcomes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.backend.JSON("GET", "/review_outcomes/book/b1", 200, []map[string]any{{
		"_id":                "o1",
		"Chunk no.":          1,
		"Page Number":        "2",
		"FactCheckingReview": map[string]any{"confidence": 80, "human_review": true},
	}})
	outcomes, err := h.coord.ListReviewOutcomes(ctx, "b1")
	if err != nil {
		t.Fatalf("ListReviewOutcomes() error = %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Reviews[reviews.FactChecking].Confidence != 80 {
		t.Errorf("unexpected outcomes: %+v", outcomes)
	}

	empty, err := h.coord.ListReviewOutcomes(ctx, "none")
	if err != nil || len(empty) != 0 {
		t.Errorf("missing outcomes = %v, %v; want empty", empty, err)
	}

	h.backend.JSON("PUT", "/review_outcomes/o1/FactCheckingReview", 200, map[string]string{"message": "ok"})
	obs := "Checked against source"
	if err := h.coord.UpdateReviewOutcome(ctx, "o1", reviews.FactChecking, reviews.Update{Observation: &obs}); err != nil {
		t.Fatalf("UpdateReviewOutcome() error = %v", err)
	}
	if !strings.Contains(string(h.backend.LastBody("PUT", "/review_outcomes/o1/FactCheckingReview")), obs) {
		t.Error("update body missing observation")
	}
	if err := h.coord.UpdateReviewOutcome(ctx, "o1", reviews.FactChecking, reviews.Update{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Errorf("expected ErrEmptyUpdate, got %v", err)
	}

	h.backend.JSON("DELETE", "/review_outcomes/o1/RhetoricToneReview", 200, map[string]string{"message": "ok"})
	if err := h.coord.DeleteReviewOutcome(ctx, "o1", reviews.RhetoricTone); err != nil {
		t.Fatalf("DeleteReviewOutcome() error = %v", err)
	}
	if err := h.coord.DeleteReviewOutcome(ctx, "o1", reviews.Type("Bogus")); err == nil {
		t.Error("expected error for unknown review type")
	}
}

func TestGetBookFile(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("GET", "/books/b1/file", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(testutil.MinimalPDF())
	})

	var buf bytes.Buffer
	n, err := h.coord.GetBookFile(context.Background(), "b1", &buf)
	if err != nil {
		t.Fatalf("GetBookFile() error = %v", err)
	}
	if n != int64(len(testutil.MinimalPDF())) || !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Errorf("unexpected file: %d bytes", n)
	}

	if _, err := h.coord.GetBookFile(context.Background(), "missing", &buf); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestClose_StopsWatchers(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})

	events, _ := h.coord.Subscribe(1)
	if err := h.coord.StartClassification(context.Background(), "b1", true, false); err != nil {
		t.Fatal(err)
	}
	stream := h.dialer.stream(t, progress.Classification, "b1")

	h.coord.Close()
	h.coord.Close()

	if stream.closes.Load() != 1 {
		t.Errorf("socket closed %d times, want 1", stream.closes.Load())
	}
	for range events {
	}
	if hints := h.hints(t, state.KeyActiveClassifications); len(hints) != 1 {
		t.Errorf("Close should keep hints for Resume, got %v", hints)
	}
	if err := h.coord.StartClassification(context.Background(), "b1", true, false); err == nil {
		t.Error("expected error after Close")
	}
}

func TestStartClassification_ConcurrentStartsPostOnce(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("POST", "/classification/b1/start", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		testutil.JSONHandler(200, map[string]string{"message": "ok"})(w, r)
	})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = h.coord.StartClassification(context.Background(), "b1", true, false)
		}()
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyTracking):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Errorf("expected one start and one ErrAlreadyTracking, got %v", errs)
	}
	if hits := h.backend.Hits("POST", "/classification/b1/start"); hits != 1 {
		t.Errorf("backend saw %d start requests, want 1", hits)
	}
}

func TestStartClassification_RetryAfterRejectedStart(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 503, map[string]string{"detail": "busy"})
	if err := h.coord.StartClassification(context.Background(), "b1", true, true); err == nil {
		t.Fatal("expected backend error")
	}
	if h.hints(t, state.KeyActiveClassifications) != nil || h.hints(t, state.KeyActiveAnalyses) != nil {
		t.Error("rejected start should leave no hints")
	}

	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})
	if err := h.coord.StartClassification(context.Background(), "b1", true, true); err != nil {
		t.Fatalf("start after rejection should be allowed: %v", err)
	}
}

func TestStartClassification_PartialDialFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/classification/b1/start", 200, map[string]string{"message": "ok"})
	h.dialer.failKind(progress.Classification, errors.New("refused"))

	if err := h.coord.StartClassification(context.Background(), "b1", true, true); err != nil {
		t.Fatalf("StartClassification() error = %v, want nil while analysis is watched", err)
	}
	if h.coord.Tracking("b1", progress.Classification) {
		t.Error("classification tracker should be dropped")
	}
	if !h.coord.Tracking("b1", progress.Analysis) {
		t.Error("analysis tracker should survive")
	}
	if h.notes.Count(notify.LevelError) == 0 {
		t.Error("expected the lost classification job to be notified")
	}
}

func TestIndexBook_ConcurrentStartsPostOnce(t *testing.T) {
	h := newHarness(t)
	h.backend.Handle("POST", "/chunks/index-book/b1", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		testutil.JSONHandler(200, map[string]string{"message": "ok"})(w, r)
	})

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.coord.IndexBook(context.Background(), "b1", 1000)
		}()
	}
	wg.Wait()

	if (errs[0] == nil) == (errs[1] == nil) {
		t.Fatalf("expected exactly one start to succeed, got %v", errs)
	}
	if hits := h.backend.Hits("POST", "/chunks/index-book/b1"); hits != 1 {
		t.Errorf("backend saw %d index requests, want 1", hits)
	}
}

func TestIndexBook_RejectedStartReleasesTracker(t *testing.T) {
	h := newHarness(t)
	h.backend.JSON("POST", "/chunks/index-book/b1", 400, map[string]string{"detail": "Book already indexed"})

	if _, err := h.coord.IndexBook(context.Background(), "b1", 1000); err == nil {
		t.Fatal("expected backend error")
	}
	if h.coord.Tracking("b1", progress.Indexing) {
		t.Error("rejected start should not leave a tracker")
	}
}

func TestIndexBook_BookDeletedWhileIndexing(t *testing.T) {
	h := newHarness(t, withPoll(10*time.Millisecond))
	h.backend.JSON("POST", "/chunks/index-book/b1", 200, map[string]string{"message": "ok"})
	h.backend.JSON("GET", "/books/b1", 404, map[string]string{"detail": "Book not found"})

	watch, err := h.coord.IndexBook(context.Background(), "b1", 1000)
	if err != nil {
		t.Fatalf("IndexBook() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := watch.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if watch.Source() != "" {
		t.Errorf("Source() = %q, want empty for a deleted book", watch.Source())
	}
	if h.notes.Count(notify.LevelSuccess) != 0 {
		t.Errorf("deleted book should not be reported complete: %+v", h.notes.Notes())
	}
	if h.notes.Count(notify.LevelWarning) != 1 {
		t.Errorf("expected one warning, got %+v", h.notes.Notes())
	}
	if h.coord.Tracking("b1", progress.Indexing) {
		t.Error("indexing tracker should be removed")
	}
}

func TestIndexBook_PollErrorsNotifyOnce(t *testing.T) {
	h := newHarness(t, withPoll(10*time.Millisecond))
	h.backend.JSON("POST", "/chunks/index-book/b1", 200, map[string]string{"message": "ok"})

	var polls atomic.Int32
	h.backend.Handle("GET", "/books/b1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) <= 5 {
			testutil.JSONHandler(502, map[string]string{"detail": "upstream down"})(w, r)
			return
		}
		testutil.JSONHandler(200, testutil.BookJSON("b1", "Annual Report", "Classified"))(w, r)
	})

	watch, err := h.coord.IndexBook(context.Background(), "b1", 1000)
	if err != nil {
		t.Fatalf("IndexBook() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := watch.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if watch.Source() != SourcePoll {
		t.Errorf("Source() = %q, want poll", watch.Source())
	}
	if n := h.notes.Count(notify.LevelError); n != 0 {
		t.Errorf("poll failures raised %d error notes, want 0", n)
	}
	if n := h.notes.Count(notify.LevelWarning); n != 1 {
		t.Errorf("poll failures raised %d warnings, want 1", n)
	}
}

func TestGetBookClassifications_CancelledCallerDoesNotFailOthers(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	var calls atomic.Int32
	h.backend.Handle("GET", "/classification/classifications/b1", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		testutil.JSONHandler(200, []Classification{{ChunkID: "c1", Label: "Policy"}})(w, r)
	})

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.coord.GetBookClassifications(first, "b1")
		firstErr <- err
	}()
	if !testutil.Eventually(2*time.Second, func() bool { return calls.Load() == 1 }) {
		close(release)
		t.Fatal("request never reached the backend")
	}

	type result struct {
		list []Classification
		err  error
	}
	second := make(chan result, 1)
	go func() {
		list, err := h.coord.GetBookClassifications(context.Background(), "b1")
		second <- result{list, err}
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled caller error = %v, want context.Canceled", err)
	}
	close(release)

	got := <-second
	if got.err != nil || len(got.list) != 1 {
		t.Errorf("other caller = %v, %v; want one classification", got.list, got.err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}
}
