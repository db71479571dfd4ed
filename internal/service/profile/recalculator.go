package profile

import (
	"context"

	"taskhub/internal/events"
	"taskhub/internal/model"
	"taskhub/pkg/logger"

	"go.uber.org/zap"
)

// TaskSource supplies the task snapshot counters are derived from.
type TaskSource interface {
	AllTasks() []model.Task
}

// Recalculator keeps profile counters in line with the task set. It runs on
// every event that can change a user's assigned or completed count.
type Recalculator struct {
	profile *Service
	tasks   TaskSource
	logger  *zap.Logger
}

func NewRecalculator(profile *Service, tasks TaskSource, log *zap.Logger) *Recalculator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recalculator{profile: profile, tasks: tasks, logger: log}
}

func (r *Recalculator) Attach(bus *events.Bus) {
	bus.Subscribe(events.TaskCompleted, r.Handle)
	bus.Subscribe(events.TaskReopened, r.Handle)
	bus.Subscribe(events.TaskDeleted, r.Handle)
}

// Handle 重新计算计数，然后刷新资料和组织成员各一次
// 计数写回失败不会跳过后面的刷新
func (r *Recalculator) Handle(ctx context.Context, evt events.Event) error {
	counts, err := r.profile.CalculateTaskCounts(ctx, r.tasks.AllTasks())
	if err != nil {
		logger.WithTrace(ctx, r.logger).Warn("Failed to recalculate task counts",
			zap.String("event_id", evt.ID),
			zap.String("task_id", evt.TaskID),
			zap.Error(err),
		)
	} else {
		logger.WithTrace(ctx, r.logger).Debug("Task counts recalculated",
			zap.String("type", string(evt.Type)),
			zap.Int("assigned", counts.TasksAssigned),
			zap.Int("completed", counts.TasksCompleted),
		)
	}

	r.profile.GetProfile(ctx)
	r.profile.FetchOrganizationUsers(ctx)
	return err
}
