package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/config"
	"github.com/jackzampolin/docdesk/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configForce bool

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the docdesk home",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		path := cfgFile
		if path == "" {
			path = h.ConfigPath()
		}
		if h.ConfigExists() && path == h.ConfigPath() && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return api.Output(a.configMgr.Get())
		})
	},
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Book list view preference",
}

var viewSetCmd = &cobra.Command{
	Use:       "set grid|table",
	Short:     "Store the default book list view",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"grid", "table"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.state.SetViewPreference(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Book view set to %s\n", args[0])
			return nil
		})
	},
}

var viewGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the stored book list view",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			v, err := a.state.ViewPreference(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	viewCmd.AddCommand(viewSetCmd, viewGetCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(viewCmd)
}
