package cli

import (
	"errors"
	"fmt"

	"taskhub/internal/model"
	"taskhub/internal/service/auth"

	"github.com/spf13/cobra"
)

func newLoginCommand(app func() *App) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			var err error
			if email == "" {
				if email, err = getSimpleText(a.reader, "Email", a.out); err != nil {
					return err
				}
			}
			password, err := getPassword(a.reader, a.out)
			if err != nil {
				return err
			}

			ws, res, err := a.registry.Open(ctx, email, password)
			if err != nil {
				return err
			}
			if err := a.store.DeleteOthers(ctx, ws.ID); err != nil {
				return err
			}
			a.printf("Logged in as %s (%s)\n", res.User.Username, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newSignupCommand(app func() *App) *cobra.Command {
	var req model.SignupRequest
	var role string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (ceo with --org-name, employee with --org-id)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			password, err := getPassword(a.reader, a.out)
			if err != nil {
				return err
			}
			req.Password = password
			req.Role = model.Role(role)

			res, err := a.registry.Signup(cmd.Context(), req)
			if err != nil {
				var fe *auth.FieldError
				if errors.As(err, &fe) {
					return fmt.Errorf("%s: %s", fe.Field, fe.Message)
				}
				if res.Message != "" {
					return errors.New(res.Message)
				}
				return err
			}
			a.printf("%s\n", res.Message)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Username, "username", "", "user name")
	f.StringVar(&req.Email, "email", "", "account email")
	f.StringVar(&role, "role", string(model.RoleEmployee), "ceo or employee")
	f.StringVar(&req.OrganizationName, "org-name", "", "new organization name (ceo)")
	f.StringVar(&req.OrganizationID, "org-id", "", "organization to join (employee), see `taskctl orgs`")
	return cmd
}

func newLogoutCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			ws, err := a.current(ctx)
			if errors.Is(err, ErrNotLoggedIn) {
				if err := a.store.Clear(ctx); err != nil {
					return err
				}
				a.printf("Not logged in.\n")
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := a.registry.Close(ctx, ws.ID); err != nil {
				return err
			}
			if err := a.store.Clear(ctx); err != nil {
				return err
			}
			a.printf("Logged out.\n")
			return nil
		},
	}
}

func newWhoamiCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			u := ws.User()
			a.printf("%s <%s> %s @ %s\n", u.Username, u.Email, u.Role, orDash(u.OrganizationName))
			return nil
		},
	}
}

func newOrgsCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "orgs",
		Short: "List organizations an employee can join",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			orgs, err := a.registry.Organizations(cmd.Context())
			if err != nil {
				return err
			}
			tw := newTable(a.out)
			fmt.Fprintln(tw, "ID\tNAME")
			for _, o := range orgs {
				fmt.Fprintf(tw, "%s\t%s\n", o.ID, o.Name)
			}
			return tw.Flush()
		},
	}
}
