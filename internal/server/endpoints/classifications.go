package endpoints

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/reviews"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// ClassificationsEndpoint handles GET /api/books/{id}/classifications.
type ClassificationsEndpoint struct{}

func (e *ClassificationsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/classifications", e.handler
}

func (e *ClassificationsEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Book classifications
//	@Description	Returns chunk classifications, cached per book. Pass refresh=true to refetch.
//	@Tags			classifications
//	@Produce		json
//	@Param			id		path	string	true	"Book ID"
//	@Param			refresh	query	bool	false	"Drop the cached result first"
//	@Success		200		{array}	books.Classification
//	@Router			/api/books/{id}/classifications [get]
func (e *ClassificationsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	id := r.PathValue("id")
	if r.URL.Query().Get("refresh") == "true" {
		c.InvalidateClassifications(id)
	}
	list, err := c.GetBookClassifications(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []books.Classification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (e *ClassificationsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "classifications <book-id>",
		Short: "Get a book's chunk classifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var list []books.Classification
			if err := client.Get(cmd.Context(), api.Pathf("/api/books/%s/classifications", args[0]), &list); err != nil {
				return err
			}
			return api.Output(list)
		},
	}
}

// ReviewRows renders as a table in text mode.
type ReviewRows []reviews.Row

// Text implements api.Texter.
func (rows ReviewRows) Text() string {
	return render.ReviewTable(rows)
}

// ReviewsEndpoint handles GET /api/books/{id}/reviews.
type ReviewsEndpoint struct{}

func (e *ReviewsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/reviews", e.handler
}

func (e *ReviewsEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Book review rows
//	@Description	Flattens the book's review outcomes into filtered rows
//	@Tags			classifications
//	@Produce		json
//	@Param			id				path	string	true	"Book ID"
//	@Param			min_confidence	query	number	false	"Drop reviews below this confidence"
//	@Param			human_review	query	bool	false	"Only reviews flagged for a human"
//	@Param			type			query	string	false	"Comma-separated review types"
//	@Success		200				{array}	reviews.Row
//	@Failure		400				{object}	ErrorResponse
//	@Router			/api/books/{id}/reviews [get]
func (e *ReviewsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	c := svcctx.CoordinatorFrom(r.Context())
	if unavailable(w, c == nil, "coordinator") {
		return
	}
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	outcomes, err := c.ListReviewOutcomes(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	rows := filter.Apply(outcomes)
	if rows == nil {
		rows = []reviews.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func parseFilter(q url.Values) (reviews.Filter, error) {
	var f reviews.Filter
	if v := q.Get("min_confidence"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, err
		}
		f.MinConfidence = n
	}
	f.OnlyHumanReview = q.Get("human_review") == "true"
	if v := q.Get("type"); v != "" {
		for _, s := range strings.Split(v, ",") {
			t, err := reviews.ParseType(s)
			if err != nil {
				return f, err
			}
			f.Types = append(f.Types, t)
		}
	}
	return f, nil
}

func (e *ReviewsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var minConf float64
	var human bool
	var types string
	cmd := &cobra.Command{
		Use:   "reviews <book-id>",
		Short: "List a book's review rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			q := url.Values{}
			if minConf > 0 {
				q.Set("min_confidence", strconv.FormatFloat(minConf, 'f', -1, 64))
			}
			if human {
				q.Set("human_review", "true")
			}
			if types != "" {
				q.Set("type", types)
			}
			path := api.Pathf("/api/books/%s/reviews", args[0])
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			var rows ReviewRows
			if err := client.Get(cmd.Context(), path, &rows); err != nil {
				return err
			}
			return api.Output(rows)
		},
	}
	cmd.Flags().Float64Var(&minConf, "min-confidence", 0, "Drop reviews below this confidence")
	cmd.Flags().BoolVar(&human, "human-review", false, "Only reviews flagged for a human")
	cmd.Flags().StringVar(&types, "type", "", "Comma-separated review types")
	return cmd
}
