package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
)

var (
	loginUsername string
	loginPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the backend",
	Long: `Sign in and keep the token in the local state database.

The password is taken from --password, then DOCDESK_PASSWORD, then stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if loginUsername == "" {
				return errors.New("--username is required")
			}
			password := loginPassword
			if password == "" {
				password = os.Getenv("DOCDESK_PASSWORD")
			}
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			u, err := a.session.Login(cmd.Context(), loginUsername, password)
			if err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(u)
			}
			fmt.Printf("Logged in as %s (%s)\n", u.Username, u.Role)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget tracked jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.session.Logout(cmd.Context()); err != nil {
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Println("Logged out")
			}
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			u, err := a.requireLogin(cmd.Context())
			if err != nil {
				return err
			}
			return api.Output(u)
		})
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
