package stats

import (
	"testing"
	"time"

	"taskhub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func task(id string, status model.Status, progress int, due *time.Time, assignees ...string) model.Task {
	t := model.Task{ID: id, Status: status, Priority: model.PriorityMedium, Progress: progress, DueDate: due}
	for _, a := range assignees {
		t.AssignedTo = append(t.AssignedTo, model.Assignee{ID: a})
	}
	return t
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil, now)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.CompletionRate)
	assert.Equal(t, 0.0, s.AverageProgress)
	assert.Len(t, s.ByStatus, len(model.Statuses))
	assert.Equal(t, 0, s.ByPriority[model.PriorityHigh])
}

func TestSummarize(t *testing.T) {
	tasks := []model.Task{
		task("1", model.StatusCompleted, 100, at(-48*time.Hour)),
		task("2", model.StatusInProgress, 50, at(-time.Hour)),
		task("3", model.StatusOverdue, 20, nil),
		task("4", model.StatusNotStarted, 0, at(24*time.Hour)),
	}
	tasks[0].Priority = model.PriorityHigh
	tasks[1].Category = "Ops"

	s := Summarize(tasks, now)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.ByStatus[model.StatusCompleted])
	assert.Equal(t, 1, s.ByStatus[model.StatusOverdue])
	assert.Equal(t, 0, s.ByStatus[model.StatusPendingReview])
	assert.Equal(t, 1, s.ByPriority[model.PriorityHigh])
	assert.Equal(t, 3, s.ByPriority[model.PriorityMedium])
	assert.Equal(t, map[string]int{"Ops": 1, "Uncategorized": 3}, s.ByCategory)
	assert.Equal(t, 2, s.Overdue)
	assert.Equal(t, 25.0, s.CompletionRate)
	assert.Equal(t, 42.5, s.AverageProgress)
}

func TestWorkload(t *testing.T) {
	users := []model.User{
		{ID: "c", Username: "boss", Role: model.RoleCEO},
		{ID: "a", Username: "ann", Role: model.RoleEmployee},
		{ID: "b", Username: "bob", Role: model.RoleEmployee},
		{ID: "z", Username: "zed", Role: model.RoleEmployee},
	}
	tasks := []model.Task{
		task("1", model.StatusCompleted, 100, nil, "a", "b"),
		task("2", model.StatusInProgress, 50, at(-time.Hour), "a"),
		task("3", model.StatusCompleted, 100, nil, "b"),
		task("4", model.StatusPendingReview, 90, nil, "c"),
	}

	loads := Workload(tasks, users, now)
	require.Len(t, loads, 3)

	assert.Equal(t, "bob", loads[0].Name)
	assert.Equal(t, 100.0, loads[0].CompletionRate)
	assert.Equal(t, EmployeeLoad{UserID: "a", Name: "ann", Assigned: 2, Completed: 1, InProgress: 1, Overdue: 1, CompletionRate: 50}, loads[1])
	assert.Equal(t, EmployeeLoad{UserID: "z", Name: "zed"}, loads[2])
}

func TestUpcoming(t *testing.T) {
	tasks := []model.Task{
		task("late", model.StatusInProgress, 0, at(-time.Hour)),
		task("far", model.StatusInProgress, 0, at(10*24*time.Hour)),
		task("soon2", model.StatusNotStarted, 0, at(48*time.Hour)),
		task("soon1", model.StatusNotStarted, 0, at(2*time.Hour)),
		task("done", model.StatusCompleted, 100, at(time.Hour)),
		task("nodue", model.StatusNotStarted, 0, nil),
	}

	got := Upcoming(tasks, now, 7*24*time.Hour)
	require.Len(t, got, 2)
	assert.Equal(t, "soon1", got[0].ID)
	assert.Equal(t, "soon2", got[1].ID)
	assert.Empty(t, Upcoming(nil, now, time.Hour))
}
