package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/docdesk/internal/notify"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books/" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("expected a request id header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"_id":"b1"}]`))
	}))
	defer server.Close()

	client := New(ClientConfig{BaseURL: server.URL + "/", Tokens: staticTokens("tok-1")})

	var books []map[string]any
	if err := client.Get(context.Background(), "/books/", &books); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(books) != 1 || books[0]["_id"] != "b1" {
		t.Errorf("unexpected books: %v", books)
	}
}

func TestClient_NoTokenNoHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("expected no Authorization header, got %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(ClientConfig{BaseURL: server.URL, Tokens: staticTokens("")})
	if err := client.Post(context.Background(), "/users/logout", nil, nil); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
}

func TestClient_ErrorDetail(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
		wantNotes  int
	}{
		{"fastapi string detail", 400, `{"detail":"Invalid book ID format"}`, "Invalid book ID format", 0},
		{"fastapi validation list", 422, `{"detail":[{"msg":"field required"},{"msg":"bad value"}]}`, "field required; bad value", 0},
		{"dashboard error field", 400, `{"error":"no files uploaded"}`, "no files uploaded", 0},
		{"plain text", 404, `not here`, "not here", 0},
		{"empty body", 404, ``, "Not Found", 0},
		{"server error is intercepted", 500, `{"detail":"database down"}`, "database down", 1},
		{"model error is intercepted", 400, `{"detail":"LLM quota exceeded"}`, "LLM quota exceeded", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			rec := notify.NewRecorder(0, nil)
			client := New(ClientConfig{BaseURL: server.URL, Notifier: rec})
			err := client.Get(context.Background(), "/x", nil)

			var apiErr *Error
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if apiErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", apiErr.Status, tt.status)
			}
			if apiErr.Detail != tt.wantDetail {
				t.Errorf("Detail = %q, want %q", apiErr.Detail, tt.wantDetail)
			}
			if apiErr.Path != "/x" || apiErr.Method != http.MethodGet {
				t.Errorf("unexpected request info: %s %s", apiErr.Method, apiErr.Path)
			}
			if got := rec.Count(notify.LevelError); got != tt.wantNotes {
				t.Errorf("intercepted notes = %d, want %d", got, tt.wantNotes)
			}
		})
	}
}

func TestClient_QuietSkipsInterception(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"upstream down"}`))
	}))
	defer server.Close()

	rec := notify.NewRecorder(0, nil)
	client := New(ClientConfig{BaseURL: server.URL, Notifier: rec})

	for i := 0; i < 3; i++ {
		if err := client.Get(Quiet(context.Background()), "/x", nil); StatusCode(err) != http.StatusBadGateway {
			t.Fatalf("Get() error = %v, want 502", err)
		}
	}
	if got := len(rec.Notes()); got != 0 {
		t.Errorf("quiet requests produced %d notes, want 0", got)
	}

	client.Get(context.Background(), "/x", nil)
	if got := rec.Count(notify.LevelError); got != 1 {
		t.Errorf("normal request produced %d notes, want 1", got)
	}
}

func TestDetailHelpers(t *testing.T) {
	nf := &Error{Status: 404, Detail: "Book not found"}
	wrapped := errors.Join(errors.New("context"), nf)

	if !IsNotFound(wrapped) {
		t.Error("expected IsNotFound through wrapping")
	}
	if got := Detail(wrapped, "fallback"); got != "Book not found" {
		t.Errorf("Detail() = %q", got)
	}
	if got := Detail(errors.New("dial tcp: refused"), "Something went wrong"); got != "Something went wrong" {
		t.Errorf("Detail() fallback = %q", got)
	}
	if StatusCode(nil) != 0 {
		t.Error("expected 0 status for nil error")
	}
}

func TestClient_PostMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.FormValue("doc_name"); got != "Annual Report" {
			t.Errorf("doc_name = %q", got)
		}
		fhs := r.MultipartForm.File["file"]
		if len(fhs) != 1 {
			t.Fatalf("expected 1 file, got %d", len(fhs))
		}
		if ct := fhs[0].Header.Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("file content type = %q", ct)
		}
		f, _ := fhs[0].Open()
		data, _ := io.ReadAll(f)
		if !bytes.HasPrefix(data, []byte("%PDF-")) {
			t.Errorf("unexpected file content: %q", data)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"_id":"new-book"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	var created struct {
		ID string `json:"_id"`
	}
	err := client.PostMultipart(context.Background(), "/books/",
		map[string]string{"doc_name": "Annual Report"},
		[]FilePart{{Field: "file", FileName: "report.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 body")}},
		&created)
	if err != nil {
		t.Fatalf("PostMultipart() error = %v", err)
	}
	if created.ID != "new-book" {
		t.Errorf("unexpected id %q", created.ID)
	}
}

func TestClient_Download(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/books/missing/file" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"File not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7 data"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var buf bytes.Buffer
	n, err := client.Download(context.Background(), "/books/b1/file", &buf)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if n != int64(buf.Len()) || buf.String() != "%PDF-1.7 data" {
		t.Errorf("unexpected download: n=%d body=%q", n, buf.String())
	}

	_, err = client.Download(context.Background(), "/books/missing/file", &buf)
	if !IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.Get(ctx, "/books/", nil); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestPathf(t *testing.T) {
	got := Pathf("/books/%s/feedback?n=%d", "a/b c", 3)
	if got != "/books/a%2Fb%20c/feedback?n=3" {
		t.Errorf("Pathf() = %s", got)
	}
}
