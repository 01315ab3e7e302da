package cli

import (
	"fmt"

	"github.com/huangang/cocode/internal/client"
	"github.com/spf13/cobra"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (prompted when empty)")
}

func (a *app) askCredentials(cmd *cobra.Command, f *credentialFlags) error {
	var err error
	if f.email == "" {
		if f.email, err = promptLine(a.in, cmd.OutOrStdout(), "Email: "); err != nil {
			return err
		}
	}
	if f.password == "" {
		if f.password, err = promptPassword(cmd.InOrStdin(), a.in, cmd.OutOrStdout()); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) remember(auth *client.Auth) error {
	a.creds.Server = a.api.BaseURL()
	a.creds.Token = auth.Token
	a.creds.UserID = auth.User.ID
	a.creds.Email = auth.User.Email
	return SaveCredentials(a.creds)
}

func (a *app) registerCommand() *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.askCredentials(cmd, &f); err != nil {
				return err
			}
			auth, err := a.api.Register(cmd.Context(), f.email, f.password)
			if err != nil {
				return err
			}
			if err := a.remember(auth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", auth.User.Email, auth.User.ID)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) loginCommand() *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.askCredentials(cmd, &f); err != nil {
				return err
			}
			auth, err := a.api.Login(cmd.Context(), f.email, f.password)
			if err != nil {
				return err
			}
			if err := a.remember(auth); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", auth.User.Email)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ClearCredentials(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			user, err := a.api.Profile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", user.ID, user.Email)
			return nil
		},
	}
}

func (a *app) usersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the other registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			users, err := a.api.Users(cmd.Context())
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			fmt.Fprintln(w, "ID\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\n", u.ID, u.Email)
			}
			return w.Flush()
		},
	}
}
