package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/books"
	"github.com/jackzampolin/docdesk/internal/pdfview"
	"github.com/jackzampolin/docdesk/internal/session"
	"github.com/jackzampolin/docdesk/internal/svcctx"
	"github.com/jackzampolin/docdesk/version"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	User    string `json:"user,omitempty"`
	Jobs    int    `json:"jobs"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

var _ api.Endpoint = (*HealthEndpoint)(nil)

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Dashboard health
//	@Description	Reports that the dashboard is up, who is signed in and how many jobs are tracked
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: version.GitRelease}
	if s := svcctx.SessionFrom(r.Context()); s != nil {
		if u := s.CurrentUser(); u != nil {
			resp.User = u.Username
		}
	}
	if c := svcctx.CoordinatorFrom(r.Context()); c != nil {
		resp.Jobs = len(c.Progress())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check dashboard health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(resp)
			}
			fmt.Printf("Status: %s\n", resp.Status)
			if resp.User != "" {
				fmt.Printf("User:   %s\n", resp.User)
			}
			fmt.Printf("Jobs:   %d\n", resp.Jobs)
			return nil
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps a service error onto an HTTP status. Backend
// errors keep the backend's status and detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *api.Error
	switch {
	case errors.As(err, &apiErr):
		writeError(w, apiErr.Status, api.Detail(err, http.StatusText(apiErr.Status)))
	case errors.Is(err, session.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, books.ErrAlreadyTracking):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, books.ErrInvalidChunkSize),
		errors.Is(err, books.ErrNoJobs),
		errors.Is(err, books.ErrEmptyUpdate),
		errors.Is(err, agents.ErrInvalidDraft),
		errors.Is(err, pdfview.ErrNotPDF),
		errors.Is(err, pdfview.ErrInvalidPDF),
		errors.Is(err, pdfview.ErrNoPages),
		errors.Is(err, pdfview.ErrImageBased):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pdfview.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// unavailable reports a missing service and returns true.
func unavailable(w http.ResponseWriter, missing bool, name string) bool {
	if missing {
		writeError(w, http.StatusServiceUnavailable, name+" not initialized")
	}
	return missing
}
