package endpoints

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/agents"
	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/notify"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// NoteList renders one note per line in text mode.
type NoteList []notify.Note

// Text implements api.Texter.
func (l NoteList) Text() string {
	if len(l) == 0 {
		return "No notifications."
	}
	var b strings.Builder
	for _, n := range l {
		fmt.Fprintf(&b, "%s  %-7s %s\n", n.At.Format("15:04:05"), n.Level, n.Msg)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// NotificationsEndpoint handles GET /api/notifications.
type NotificationsEndpoint struct{}

func (e *NotificationsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/notifications", e.handler
}

func (e *NotificationsEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Recent notifications
//	@Tags			status
//	@Produce		json
//	@Success		200	{array}	notify.Note
//	@Router			/api/notifications [get]
func (e *NotificationsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	rec := svcctx.NotificationsFrom(r.Context())
	if unavailable(w, rec == nil, "notifications") {
		return
	}
	writeJSON(w, http.StatusOK, rec.Notes())
}

func (e *NotificationsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "notifications",
		Short: "Show recent dashboard notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var notes NoteList
			if err := client.Get(cmd.Context(), "/api/notifications", &notes); err != nil {
				return err
			}
			return api.Output(notes)
		},
	}
}

// AgentList renders as a table in text mode.
type AgentList []agents.Agent

// Text implements api.Texter.
func (l AgentList) Text() string {
	return render.AgentTable(l)
}

// AgentsEndpoint handles GET /api/agents.
type AgentsEndpoint struct{}

func (e *AgentsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/agents", e.handler
}

func (e *AgentsEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		List agents
//	@Description	Refreshes and lists classification and analysis agents. Filter with type.
//	@Tags			agents
//	@Produce		json
//	@Param			type	query	string	false	"classification or analysis"
//	@Success		200		{array}	agents.Agent
//	@Router			/api/agents [get]
func (e *AgentsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := svcctx.AgentsFrom(r.Context())
	if unavailable(w, store == nil, "agents") {
		return
	}
	if err := store.Fetch(r.Context()); err != nil {
		writeServiceError(w, err)
		return
	}
	list := store.List()
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := agents.ParseType(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = store.ByType(t)
	}
	if list == nil {
		list = []agents.Agent{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (e *AgentsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var agentType string
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List agents through the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/agents"
			if agentType != "" {
				path += "?type=" + agentType
			}
			var list AgentList
			if err := client.Get(cmd.Context(), path, &list); err != nil {
				return err
			}
			return api.Output(list)
		},
	}
	cmd.Flags().StringVar(&agentType, "type", "", "classification or analysis")
	return cmd
}
