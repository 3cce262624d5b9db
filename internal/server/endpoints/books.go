package endpoints

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// BookList renders as a table in text mode.
type BookList []books.Book

// Text implements api.Texter.
func (l BookList) Text() string {
	return render.BookTable(l, nil)
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		List books
//	@Description	Refreshes and returns the book list. Pass cached=true to skip the refresh.
//	@Tags			books
//	@Produce		json
//	@Param			cached	query		bool	false	"Return the last fetched list"
//	@Success		200		{array}		books.Book
//	@Failure		502		{object}	ErrorResponse
//	@Router			/api/books [get]
func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	if r.URL.Query().Get("cached") != "true" {
		if err := c.FetchBooks(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
	}
	list := c.Books()
	if list == nil {
		list = []books.Book{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "books",
		Short: "List books known to the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var list BookList
			if err := client.Get(cmd.Context(), "/api/books", &list); err != nil {
				return err
			}
			return api.Output(list)
		},
	}
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Get book by ID
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	books.Book
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	b, err := c.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "book <id>",
		Short: "Get a book by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var b books.Book
			if err := client.Get(cmd.Context(), api.Pathf("/api/books/%s", args[0]), &b); err != nil {
				return err
			}
			return api.Output(b)
		},
	}
}

// BookFileEndpoint handles GET /api/books/{id}/file.
type BookFileEndpoint struct{}

func (e *BookFileEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/file", e.handler
}

func (e *BookFileEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Book PDF
//	@Description	Streams the book's PDF from the backend
//	@Tags			books
//	@Produce		application/pdf
//	@Param			id	path	string	true	"Book ID"
//	@Success		200
//	@Router			/api/books/{id}/file [get]
func (e *BookFileEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	id := r.PathValue("id")
	if b, ok := c.Book(id); ok {
		name := strings.ReplaceAll(b.DocName, `"`, "")
		w.Header().Set("Content-Disposition", `inline; filename="`+name+`.pdf"`)
	}
	w.Header().Set("Content-Type", "application/pdf")

	// Headers are not sent until the first write, so a failed lookup can
	// still become a JSON error.
	bw := &lazyWriter{w: w}
	if _, err := c.GetBookFile(r.Context(), id, bw); err != nil && !bw.wrote {
		w.Header().Del("Content-Disposition")
		writeServiceError(w, err)
	}
}

func (e *BookFileEndpoint) Command(_ func() string) *cobra.Command {
	return nil // docdesk books download covers this
}

type lazyWriter struct {
	w     http.ResponseWriter
	wrote bool
}

func (l *lazyWriter) Write(p []byte) (int, error) {
	l.wrote = true
	return l.w.Write(p)
}
