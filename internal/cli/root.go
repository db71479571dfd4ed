package cli

import (
	"time"

	"taskhub/pkg/config"
	"taskhub/pkg/logger"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the taskctl command tree. The App is opened before
// every command runs and closed after it.
func NewRootCommand() *cobra.Command {
	var (
		opts Options
		app  *App
	)

	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Work with organization tasks from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewDevelopment(opts.Verbose)
			a, err := NewApp(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if app == nil {
				return nil
			}
			return app.Close()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.APIBaseURL, "api", config.GetEnv("TASKHUB_API", "http://localhost:5000"), "task API base URL")
	f.StringVar(&opts.DBPath, "db", config.GetEnv("TASKHUB_DB", "taskctl.db"), "local session database")
	f.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "API request timeout")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	get := func() *App { return app }
	root.AddCommand(
		newLoginCommand(get),
		newSignupCommand(get),
		newLogoutCommand(get),
		newWhoamiCommand(get),
		newOrgsCommand(get),
		newProfileCommand(get),
		newUsersCommand(get),
		newInviteCommand(get),
		newTasksCommand(get),
		newStatsCommand(get),
	)
	return root
}
