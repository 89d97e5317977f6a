package main

import (
	"fmt"
	"os"

	"github.com/littlegabriel/gabriel"
	"github.com/spf13/cobra"
)

func usersCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts",
	}

	cmd.AddCommand(
		usersCreateCmd(configFile),
		usersPromoteCmd(configFile),
	)
	return cmd
}

// withRepository bootstraps just enough of the app for account commands
func withRepository(cmd *cobra.Command, configFile string) (*App, error) {
	app, err := Bootstrap(configFile)
	if err != nil {
		return nil, err
	}
	if err := WithPersistence(cmd.Context(), app); err != nil {
		return nil, err
	}
	return app, nil
}

func usersCreateCmd(configFile *string) *cobra.Command {
	var (
		email    string
		name     string
		password string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("GABRIEL_USER_PASSWORD")
			}

			app, err := withRepository(cmd, *configFile)
			if err != nil {
				return err
			}
			defer app.Close()

			var created *gabriel.User
			handler := gabriel.NewRegisterUserHandler(app.repo).
				WithLogger(app.GetLogger("users")).
				WithActivitySink(app.Activity())

			err = handler.Execute(cmd.Context(), gabriel.RegisterUserMessage{
				Name:       name,
				Email:      email,
				Password:   password,
				Role:       role,
				UseHashid:  app.config.Auth.UseHashid,
				OnResponse: func(u *gabriel.User) { created = u },
			})
			if err != nil {
				return err
			}

			if created != nil {
				success("created %s (%s) with role %s", created.Email, created.ID, created.Role)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "initial password, defaults to GABRIEL_USER_PASSWORD")
	cmd.Flags().StringVar(&role, "role", gabriel.RoleUser, "user or admin")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func usersPromoteCmd(configFile *string) *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "promote <email>",
		Short: "Change the role of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := withRepository(cmd, *configFile)
			if err != nil {
				return err
			}
			defer app.Close()

			var updated *gabriel.User
			handler := gabriel.NewPromoteUserHandler(app.repo).
				WithLogger(app.GetLogger("users")).
				WithActivitySink(app.Activity())

			err = handler.Execute(cmd.Context(), gabriel.PromoteUserMessage{
				Identifier: args[0],
				Role:       role,
				Actor:      gabriel.ActorRef{Type: "cli", ID: "gabriel"},
				OnResponse: func(u *gabriel.User) { updated = u },
			})
			if err != nil {
				return err
			}

			if updated != nil {
				success("%s is now %s", updated.Email, updated.Role)
			} else {
				fmt.Println("no changes")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", gabriel.RoleAdmin, "target role")
	return cmd
}
