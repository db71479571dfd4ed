package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"taskhub/internal/model"
	"taskhub/internal/service/stats"
)

const dateLayout = "2006-01-02"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printTasks(w io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tPROGRESS\tDUE\tASSIGNEES")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(dateLayout)
		}
		names := make([]string, 0, len(t.AssignedTo))
		for _, a := range t.AssignedTo {
			names = append(names, a.Name)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d%%\t%s\t%s\n",
			t.ID, t.Title, t.Status, t.Priority, t.Progress, due, strings.Join(names, ","))
	}
	tw.Flush()
}

func printUsers(w io.Writer, users []model.User) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tROLE\tASSIGNED\tCOMPLETED")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", u.ID, u.Username, u.Email, u.Role, u.TasksAssigned, u.TasksCompleted)
	}
	tw.Flush()
}

func printUser(w io.Writer, u model.User) {
	tw := newTable(w)
	fmt.Fprintf(tw, "ID\t%s\n", u.ID)
	fmt.Fprintf(tw, "Username\t%s\n", u.Username)
	fmt.Fprintf(tw, "Email\t%s\n", u.Email)
	fmt.Fprintf(tw, "Role\t%s\n", u.Role)
	fmt.Fprintf(tw, "Organization\t%s\n", orDash(u.OrganizationName))
	if u.Position != "" {
		fmt.Fprintf(tw, "Position\t%s\n", u.Position)
	}
	if u.Department != "" {
		fmt.Fprintf(tw, "Department\t%s\n", u.Department)
	}
	fmt.Fprintf(tw, "Tasks assigned\t%d\n", u.TasksAssigned)
	fmt.Fprintf(tw, "Tasks completed\t%d\n", u.TasksCompleted)
	tw.Flush()
}

func printSummary(w io.Writer, s stats.Summary) {
	tw := newTable(w)
	fmt.Fprintf(tw, "Total\t%d\n", s.Total)
	for _, st := range model.Statuses {
		fmt.Fprintf(tw, "%s\t%d\n", st, s.ByStatus[st])
	}
	fmt.Fprintf(tw, "Overdue\t%d\n", s.Overdue)
	fmt.Fprintf(tw, "Completion rate\t%.1f%%\n", s.CompletionRate)
	fmt.Fprintf(tw, "Average progress\t%.1f%%\n", s.AverageProgress)
	tw.Flush()
}

func printWorkload(w io.Writer, loads []stats.EmployeeLoad) {
	tw := newTable(w)
	fmt.Fprintln(tw, "EMPLOYEE\tASSIGNED\tIN PROGRESS\tCOMPLETED\tOVERDUE\tRATE")
	for _, l := range loads {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.1f%%\n", l.Name, l.Assigned, l.InProgress, l.Completed, l.Overdue, l.CompletionRate)
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
