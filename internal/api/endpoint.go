package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint defines both a dashboard HTTP route and its corresponding CLI command.
type Endpoint interface {
	// Route returns the HTTP method, path, and handler for this endpoint.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresAuth returns true if the route is only served to callers
	// holding an access token.
	RequiresAuth() bool

	// Command returns a Cobra command that calls this endpoint via HTTP.
	// getServerURL is called at runtime to get the dashboard URL.
	// Routes with no CLI counterpart (HTML pages) return nil.
	Command(getServerURL func() string) *cobra.Command
}
