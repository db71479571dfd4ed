package cli

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"taskhub/internal/model"
	"taskhub/internal/service/tasks"
	"taskhub/internal/workspace"
	"taskhub/pkg/rbac"

	"github.com/spf13/cobra"
)

func newTasksCommand(app func() *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and change tasks",
	}
	cmd.AddCommand(
		newTasksListCommand(app),
		newTasksCreateCommand(app),
		newTasksUpdateCommand(app),
		newTasksDeleteCommand(app),
	)
	return cmd
}

func newTasksListCommand(app func() *App) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (a ceo sees the whole organization)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			if err := ws.Tasks.EnsureFresh(cmd.Context()); err != nil {
				return err
			}
			list := ws.Tasks.MyTasks()
			if !mine && rbac.HasPermission(string(ws.User().Role), rbac.PermissionViewAllTasks) {
				list = ws.Tasks.AllTasks()
			}
			printTasks(a.out, list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only tasks assigned to me")
	return cmd
}

func newTasksCreateCommand(app func() *App) *cobra.Command {
	var (
		in        model.NewTask
		priority  string
		status    string
		due       string
		frequency string
		assignees []string
		files     []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (ceo)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			ws, err := a.current(ctx)
			if err != nil {
				return err
			}
			if err := rbac.CheckPermission(string(ws.User().Role), rbac.PermissionCreateTask); err != nil {
				return err
			}

			in.Priority = model.Priority(priority)
			in.Status = model.Status(status)
			if due != "" {
				d, err := time.Parse(dateLayout, due)
				if err != nil {
					return fmt.Errorf("invalid --due %q, want YYYY-MM-DD", due)
				}
				in.DueDate = &d
			}
			if frequency != "" {
				in.Recurring = true
				in.RecurringFrequency = model.Frequency(frequency)
			}
			if len(assignees) > 0 {
				if in.AssignedTo, err = resolveAssignees(ws.Profile.FetchOrganizationUsers(ctx), assignees); err != nil {
					return err
				}
			}
			for _, path := range files {
				att, err := readAttachment(path)
				if err != nil {
					return err
				}
				in.Attachments = append(in.Attachments, att)
			}

			task, err := ws.Tasks.CreateTask(ctx, in)
			if err != nil {
				return err
			}
			a.printf("Created %s\n", task.ID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Title, "title", "", "task title")
	f.StringVar(&in.Description, "description", "", "task description")
	f.StringVar(&in.Category, "category", "", "category")
	f.StringVar(&priority, "priority", "", "Low, Medium or High")
	f.StringVar(&status, "status", "", "initial status")
	f.StringVar(&due, "due", "", "due date YYYY-MM-DD")
	f.StringVar(&frequency, "recurring", "", "daily, weekly or monthly")
	f.StringSliceVar(&in.Tags, "tag", nil, "tag (repeatable)")
	f.StringSliceVar(&assignees, "assign", nil, "assignee username or id (repeatable)")
	f.StringSliceVar(&files, "file", nil, "attachment path (repeatable)")
	f.BoolVar(&in.NotifyAssignees, "notify", false, "notify assignees")
	return cmd
}

func newTasksUpdateCommand(app func() *App) *cobra.Command {
	var (
		title    string
		status   string
		priority string
		progress int
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a task (employees: status and progress of their own tasks)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ctx := cmd.Context()
			ws, err := a.current(ctx)
			if err != nil {
				return err
			}

			var patch model.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("status") {
				s := model.Status(status)
				patch.Status = &s
			}
			if flags.Changed("priority") {
				p := model.Priority(priority)
				patch.Priority = &p
			}
			if flags.Changed("progress") {
				patch.Progress = &progress
			}

			current, err := findTask(cmd, ws, args[0])
			if err != nil {
				return err
			}
			u := ws.User()
			if err := rbac.CheckTaskUpdate(string(u.Role), patch.Fields(), status, current.IsAssignedTo(u.ID)); err != nil {
				return err
			}

			task, err := ws.Tasks.UpdateTask(ctx, args[0], patch)
			if err != nil {
				return err
			}
			a.printf("Updated %s: %s, %d%%\n", task.ID, task.Status, task.Progress)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&title, "title", "", "new title")
	f.StringVar(&status, "status", "", "new status")
	f.StringVar(&priority, "priority", "", "new priority")
	f.IntVar(&progress, "progress", 0, "progress 0-100")
	return cmd
}

func newTasksDeleteCommand(app func() *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task (ceo)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			ws, err := a.current(cmd.Context())
			if err != nil {
				return err
			}
			if err := rbac.CheckPermission(string(ws.User().Role), rbac.PermissionDeleteTask); err != nil {
				return err
			}
			if err := ws.Tasks.DeleteTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			a.printf("Deleted %s\n", args[0])
			return nil
		},
	}
}

// findTask looks in the cache first and refetches once on a miss.
func findTask(cmd *cobra.Command, ws *workspace.Workspace, id string) (model.Task, error) {
	t, err := ws.Tasks.Get(id)
	if !errors.Is(err, tasks.ErrNotFound) {
		return t, err
	}
	if err := ws.Tasks.Refresh(cmd.Context()); err != nil {
		return model.Task{}, err
	}
	return ws.Tasks.Get(id)
}

// resolveAssignees matches each name against the roster by username or id.
func resolveAssignees(roster []model.User, names []string) ([]model.Assignee, error) {
	out := make([]model.Assignee, 0, len(names))
	for _, name := range names {
		var found *model.User
		for i := range roster {
			if roster[i].Username == name || roster[i].ID == name {
				found = &roster[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("no user %q in your organization", name)
		}
		out = append(out, model.SnapshotOf(*found))
	}
	return out, nil
}

func readAttachment(path string) (model.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	// data URI 只保留媒体类型，去掉 charset 等参数
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	return model.Attachment{Name: filepath.Base(path), ContentType: ct, Data: data}, nil
}
