package cli

import (
	"time"

	"taskhub/internal/service/stats"
	"taskhub/pkg/rbac"

	"github.com/spf13/cobra"
)

func newStatsCommand(app func() *App) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Dashboard numbers for your role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			ws, err := a.current(ctx)
			if err != nil {
				return err
			}
			if err := ws.Tasks.EnsureFresh(ctx); err != nil {
				return err
			}

			now := time.Now()
			list := ws.Tasks.MyTasks()
			ceo := rbac.HasPermission(string(ws.User().Role), rbac.PermissionViewAllTasks)
			if ceo {
				list = ws.Tasks.AllTasks()
			}

			printSummary(a.out, stats.Summarize(list, now))
			if ceo {
				a.printf("\n")
				printWorkload(a.out, stats.Workload(list, ws.Profile.FetchOrganizationUsers(ctx), now))
			}
			if upcoming := stats.Upcoming(list, now, time.Duration(days)*24*time.Hour); len(upcoming) > 0 {
				a.printf("\nDue in the next %d days:\n", days)
				printTasks(a.out, upcoming)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "upcoming window in days")
	return cmd
}
