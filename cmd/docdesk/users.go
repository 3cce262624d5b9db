package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docdesk/internal/api"
	"github.com/jackzampolin/docdesk/internal/render"
	"github.com/jackzampolin/docdesk/internal/session"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "User administration (admin only)",
}

// userList renders as a table in text mode.
type userList []session.User

func (l userList) Text() string { return render.UserTable(l) }

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			users, err := a.session.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			return api.Output(userList(users))
		})
	},
}

var newUser session.Registration

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			u, err := a.session.Register(cmd.Context(), newUser)
			if err != nil {
				return err
			}
			if api.IsStructuredOutput() {
				return api.Output(u)
			}
			fmt.Printf("Created user %s\n", u.Username)
			return nil
		})
	},
}

var usersEditCmd = &cobra.Command{
	Use:   "edit <user-id>",
	Short: "Change a user's name, role, department or password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			var up session.UserUpdate
			flags := cmd.Flags()
			for name, dst := range map[string]**string{
				"username":   &up.Username,
				"role":       &up.Role,
				"department": &up.Department,
				"password":   &up.Password,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = &v
				}
			}
			if up == (session.UserUpdate{}) {
				return fmt.Errorf("nothing to change: pass at least one of --username, --role, --department, --password")
			}
			if err := a.session.EditUser(cmd.Context(), args[0], up); err != nil {
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Printf("Updated user %s\n", args[0])
			}
			return nil
		})
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <user-id>",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if _, err := a.requireAdmin(cmd.Context()); err != nil {
				return err
			}
			if err := a.session.DeleteUser(cmd.Context(), args[0]); err != nil {
				return err
			}
			if !api.IsStructuredOutput() {
				fmt.Printf("Deleted user %s\n", args[0])
			}
			return nil
		})
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&newUser.Username, "username", "", "Username")
	usersCreateCmd.Flags().StringVar(&newUser.Password, "password", "", "Password")
	usersCreateCmd.Flags().StringVar(&newUser.Role, "role", "user", "Role: user or admin")
	usersCreateCmd.Flags().StringVar(&newUser.Department, "department", "", "Department")

	usersEditCmd.Flags().String("username", "", "New username")
	usersEditCmd.Flags().String("role", "", "New role")
	usersEditCmd.Flags().String("department", "", "New department")
	usersEditCmd.Flags().String("password", "", "New password")

	usersCmd.AddCommand(usersListCmd, usersCreateCmd, usersEditCmd, usersDeleteCmd)
	rootCmd.AddCommand(usersCmd)
}
