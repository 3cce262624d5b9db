package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// IndexResponse is returned when indexing starts.
type IndexResponse struct {
	BookID    string `json:"book_id"`
	ChunkSize int    `json:"chunk_size"`
}

// IndexBookEndpoint handles POST /api/books/{id}/index.
type IndexBookEndpoint struct{}

func (e *IndexBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/index", e.handler
}

func (e *IndexBookEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Start indexing
//	@Description	Starts indexing a book and tracks it until the backend reports it processed
//	@Tags			jobs
//	@Produce		json
//	@Param			id			path		string	true	"Book ID"
//	@Param			chunk_size	query		int		false	"Chunk size (1000-8000)"
//	@Success		202			{object}	IndexResponse
//	@Failure		400			{object}	ErrorResponse
//	@Failure		409			{object}	ErrorResponse
//	@Router			/api/books/{id}/index [post]
func (e *IndexBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}

	chunkSize := svcctx.ConfigFrom(r.Context()).Indexing.ChunkSize
	if v := r.URL.Query().Get("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "chunk_size must be an integer")
			return
		}
		chunkSize = n
	}

	id := r.PathValue("id")
	// The watch outlives this request; progress arrives on /api/events.
	if _, err := c.IndexBook(r.Context(), id, chunkSize); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, IndexResponse{BookID: id, ChunkSize: chunkSize})
}

func (e *IndexBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "index <book-id>",
		Short: "Start indexing a book through the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := api.Pathf("/api/books/%s/index", args[0])
			if chunkSize > 0 {
				path += "?chunk_size=" + strconv.Itoa(chunkSize)
			}
			var resp IndexResponse
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Indexing %s (chunk size %d)\n", resp.BookID, resp.ChunkSize)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Chunk size (default from dashboard config)")
	return cmd
}

// ClassifyRequest selects which jobs to start.
type ClassifyRequest struct {
	Classification bool `json:"classification"`
	Analysis       bool `json:"analysis"`
}

// ClassifyBookEndpoint handles POST /api/books/{id}/classify.
type ClassifyBookEndpoint struct{}

func (e *ClassifyBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/classify", e.handler
}

func (e *ClassifyBookEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Start classification and analysis
//	@Tags			jobs
//	@Accept			json
//	@Param			id		path		string			true	"Book ID"
//	@Param			request	body		ClassifyRequest	true	"Jobs to start"
//	@Success		202
//	@Failure		400		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Router			/api/books/{id}/classify [post]
func (e *ClassifyBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := c.StartClassification(r.Context(), r.PathValue("id"), req.Classification, req.Analysis); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (e *ClassifyBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req ClassifyRequest
	cmd := &cobra.Command{
		Use:   "classify <book-id>",
		Short: "Start classification and/or analysis through the dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Post(cmd.Context(), api.Pathf("/api/books/%s/classify", args[0]), req, nil); err != nil {
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Printf("Started jobs for %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&req.Classification, "classification", true, "Run classification")
	cmd.Flags().BoolVar(&req.Analysis, "analysis", false, "Run analysis")
	return cmd
}

// ProgressView renders tracked jobs as a list in text mode.
type ProgressView []books.Progress

// Text implements api.Texter.
func (v ProgressView) Text() string {
	return render.ProgressList(v, nil)
}

// ProgressEndpoint handles GET /api/progress.
type ProgressEndpoint struct{}

func (e *ProgressEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/progress", e.handler
}

func (e *ProgressEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Tracked jobs
//	@Description	Lists every job the coordinator is tracking
//	@Tags			jobs
//	@Produce		json
//	@Success		200	{array}	books.Progress
//	@Router			/api/progress [get]
func (e *ProgressEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	p := c.Progress()
	if p == nil {
		p = []books.Progress{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (e *ProgressEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "List jobs the dashboard is tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var p ProgressView
			if err := client.Get(cmd.Context(), "/api/progress", &p); err != nil {
				return err
			}
			return api.Output(p)
		},
	}
}
