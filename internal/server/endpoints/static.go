package endpoints

import (
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/web"
)

// serveHTML writes an embedded page, or 404 if it does not exist.
func serveHTML(w http.ResponseWriter, name string) {
	distFS, err := web.DistFS()
	if err != nil {
		http.Error(w, "Frontend not available", http.StatusInternalServerError)
		return
	}
	page, err := fs.ReadFile(distFS, name)
	if err != nil {
		http.NotFound(w, nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// IndexEndpoint serves the sign-in page.
type IndexEndpoint struct{}

var _ api.Endpoint = (*IndexEndpoint)(nil)

func (e *IndexEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{$}", e.handler
}

func (e *IndexEndpoint) RequiresAuth() bool { return false }

func (e *IndexEndpoint) Command(_ func() string) *cobra.Command { return nil }

func (e *IndexEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	serveHTML(w, "index.html")
}

// StaticEndpoint serves scripts and stylesheets. They carry no data and
// the sign-in page needs them, so they are public.
type StaticEndpoint struct{}

func (e *StaticEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/static/{path...}", e.handler
}

func (e *StaticEndpoint) RequiresAuth() bool { return false }

func (e *StaticEndpoint) Command(_ func() string) *cobra.Command { return nil }

func (e *StaticEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	distFS, err := web.DistFS()
	if err != nil {
		http.Error(w, "Frontend not available", http.StatusInternalServerError)
		return
	}
	http.FileServer(http.FS(distFS)).ServeHTTP(w, r)
}

// BookPageEndpoint serves the single book viewer.
type BookPageEndpoint struct{}

func (e *BookPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/books/{id}", e.handler
}

func (e *BookPageEndpoint) RequiresAuth() bool { return true }

func (e *BookPageEndpoint) Command(_ func() string) *cobra.Command { return nil }

func (e *BookPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	serveHTML(w, "book.html")
}

// PageEndpoint serves every other dashboard page by name, so /books
// serves books.html. Must be registered last.
type PageEndpoint struct{}

func (e *PageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/{path...}", e.handler
}

func (e *PageEndpoint) RequiresAuth() bool { return true }

func (e *PageEndpoint) Command(_ func() string) *cobra.Command { return nil }

func (e *PageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(path.Clean("/"+r.PathValue("path")), "/")
	if name == "" || strings.Contains(name, ".") {
		http.NotFound(w, r)
		return
	}
	serveHTML(w, name+".html")
}
