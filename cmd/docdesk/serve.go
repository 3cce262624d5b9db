package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/config"
	"github.com/jackzampolin/docdesk/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local dashboard",
	Long: `Start the docdesk dashboard.

The dashboard resumes tracked jobs, serves the book, review and agent
pages, and pushes live progress to the browser. Pages other than the
sign-in page need the access_token cookie that signing in sets.

The config file is watched. A new chunk size applies to indexing started
afterwards; timing changes need a restart.

Examples:
  docdesk serve                    # Start on the configured port (8080)
  docdesk serve --port 3000        # Start on custom port
  docdesk serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			cfg := a.configMgr.Get()
			host, port := serveHost, servePort
			if host == "" {
				host = cfg.Dashboard.Host
			}
			if port == "" {
				port = cfg.Dashboard.Port
			}

			if a.configMgr.ConfigFile() != "" {
				timing := cfg.Timing
				a.configMgr.OnChange(func(c *config.Config) {
					if c.Timing != timing {
						a.logger.Warn("timing changes take effect after restart")
					}
				})
				a.configMgr.WatchConfig(a.logger)
			}

			// Pick up a login made with docdesk login before the dashboard started.
			if _, err := a.session.Refresh(cmd.Context()); err != nil {
				a.logger.Info("no active session; sign in through the dashboard")
			}

			srv, err := server.New(server.Config{
				Host:     host,
				Port:     port,
				Services: a.services(),
				Logger:   a.logger,
			})
			if err != nil {
				return err
			}

			// Start server (blocks until shutdown)
			return srv.Start(cmd.Context())
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
