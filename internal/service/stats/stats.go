// Package stats derives dashboard aggregations from a task snapshot.
package stats

import (
	"math"
	"sort"
	"time"

	"taskhub/internal/model"
)

type Summary struct {
	Total           int                    `json:"total"`
	ByStatus        map[model.Status]int   `json:"byStatus"`
	ByPriority      map[model.Priority]int `json:"byPriority"`
	ByCategory      map[string]int         `json:"byCategory"`
	Overdue         int                    `json:"overdue"`
	CompletionRate  float64                `json:"completionRate"`
	AverageProgress float64                `json:"averageProgress"`
}

// Summarize counts tasks by status, priority and category. CompletionRate
// and AverageProgress are percentages rounded to one decimal, 0 for no tasks.
func Summarize(tasks []model.Task, now time.Time) Summary {
	s := Summary{
		Total:      len(tasks),
		ByStatus:   make(map[model.Status]int, len(model.Statuses)),
		ByPriority: map[model.Priority]int{model.PriorityLow: 0, model.PriorityMedium: 0, model.PriorityHigh: 0},
		ByCategory: make(map[string]int),
	}
	for _, st := range model.Statuses {
		s.ByStatus[st] = 0
	}

	progress := 0
	for _, t := range tasks {
		s.ByStatus[t.Status]++
		s.ByPriority[t.Priority]++
		cat := t.Category
		if cat == "" {
			cat = "Uncategorized"
		}
		s.ByCategory[cat]++
		if t.IsOverdue(now) {
			s.Overdue++
		}
		progress += t.Progress
	}

	s.CompletionRate = percent(s.ByStatus[model.StatusCompleted], s.Total)
	if s.Total > 0 {
		s.AverageProgress = round1(float64(progress) / float64(s.Total))
	}
	return s
}

type EmployeeLoad struct {
	UserID         string  `json:"userId"`
	Name           string  `json:"name"`
	Assigned       int     `json:"assigned"`
	Completed      int     `json:"completed"`
	InProgress     int     `json:"inProgress"`
	Overdue        int     `json:"overdue"`
	CompletionRate float64 `json:"completionRate"`
}

// Workload reports per-employee task counts, best completion rate first.
// Ties are broken by name.
func Workload(tasks []model.Task, users []model.User, now time.Time) []EmployeeLoad {
	loads := make([]EmployeeLoad, 0, len(users))
	for _, u := range users {
		if u.Role != model.RoleEmployee {
			continue
		}
		l := EmployeeLoad{UserID: u.ID, Name: u.Username}
		for _, t := range tasks {
			if !t.IsAssignedTo(u.ID) {
				continue
			}
			l.Assigned++
			switch {
			case t.Status == model.StatusCompleted:
				l.Completed++
			case t.Status == model.StatusInProgress || t.Status == model.StatusPendingReview:
				l.InProgress++
			}
			if t.IsOverdue(now) {
				l.Overdue++
			}
		}
		l.CompletionRate = percent(l.Completed, l.Assigned)
		loads = append(loads, l)
	}

	sort.SliceStable(loads, func(i, j int) bool {
		if loads[i].CompletionRate != loads[j].CompletionRate {
			return loads[i].CompletionRate > loads[j].CompletionRate
		}
		return loads[i].Name < loads[j].Name
	})
	return loads
}

// Upcoming returns open tasks due in [now, now+within], soonest first.
func Upcoming(tasks []model.Task, now time.Time, within time.Duration) []model.Task {
	end := now.Add(within)
	out := []model.Task{}
	for _, t := range tasks {
		if t.Status == model.StatusCompleted || t.DueDate == nil {
			continue
		}
		if t.DueDate.Before(now) || t.DueDate.After(end) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DueDate.Before(*out[j].DueDate)
	})
	return out
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) * 100 / float64(total))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
