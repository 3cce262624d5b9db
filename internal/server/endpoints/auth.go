package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/session"
	"github.com/jackzampolin/docdesk/internal/svcctx"
)

// AccessTokenCookie gates the dashboard pages.
const AccessTokenCookie = "access_token"

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginEndpoint handles POST /api/login.
type LoginEndpoint struct{}

func (e *LoginEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/login", e.handler
}

func (e *LoginEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Sign in
//	@Description	Signs in against the backend and sets the access_token cookie
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	session.User
//	@Failure		400		{object}	ErrorResponse
//	@Failure		401		{object}	ErrorResponse
//	@Router			/api/login [post]
func (e *LoginEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	s := svcctx.SessionFrom(r.Context())
	st := svcctx.StateFrom(r.Context())
	if unavailable(w, s == nil || st == nil, "session") {
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	u, err := s.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	token, err := st.Token(r.Context())
	if err != nil || token == "" {
		writeError(w, http.StatusInternalServerError, "login succeeded but no token was stored")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, u)
}

func (e *LoginEndpoint) Command(_ func() string) *cobra.Command {
	return nil // docdesk login talks to the backend directly
}

// LogoutEndpoint handles POST /api/logout.
type LogoutEndpoint struct{}

func (e *LogoutEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/logout", e.handler
}

func (e *LogoutEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Sign out
//	@Description	Signs out, resets tracked jobs and clears the access_token cookie
//	@Tags			session
//	@Success		204
//	@Router			/api/logout [post]
func (e *LogoutEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	if s := svcctx.SessionFrom(r.Context()); s != nil {
		if err := s.Logout(r.Context()); err != nil {
			svcctx.LoggerFrom(r.Context()).Warn("logout failed", "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (e *LogoutEndpoint) Command(getServerURL func() string) *cobra.Command {
	return nil // docdesk logout talks to the backend directly
}

// WhoAmIEndpoint handles GET /api/me.
type WhoAmIEndpoint struct{}

func (e *WhoAmIEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/me", e.handler
}

func (e *WhoAmIEndpoint) RequiresAuth() bool { return false }

// handler godoc
//
//	@Summary		Current user
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.User
//	@Failure		401	{object}	ErrorResponse
//	@Router			/api/me [get]
func (e *WhoAmIEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	s := svcctx.SessionFrom(r.Context())
	if unavailable(w, s == nil, "session") {
		return
	}
	u, err := s.RequireUser()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (e *WhoAmIEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the user the dashboard is signed in as",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var u session.User
			if err := client.Get(cmd.Context(), "/api/me", &u); err != nil {
				return err
			}
			return api.Output(u)
		},
	}
}
