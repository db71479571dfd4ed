package cli

import (
	"github.com/spf13/cobra"
)

func newProfileCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			u := ws.Profile.GetProfile(cmd.Context())
			if u == nil {
				cur := ws.User()
				u = &cur
			}
			printUser(a.out, *u)
			return nil
		},
	}
}

func newUsersCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List the members of your organization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			printUsers(a.out, ws.Profile.FetchOrganizationUsers(cmd.Context()))
			return nil
		},
	}
}

func newInviteCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "invite EMAIL",
		Short: "Invite an employee to your organization (ceo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			msg, err := ws.Profile.InviteEmployee(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("%s\n", msg)
			return nil
		},
	}
}
