package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"taskhub/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Type string

const (
	TaskCompleted Type = "task.completed"
	TaskReopened  Type = "task.reopened"
	TaskDeleted   Type = "task.deleted"
)

// Event is a task domain event. Assignees holds the assignee ids of the
// affected task at the time of the change.
type Event struct {
	ID             string
	Type           Type
	SessionID      string
	OrganizationID string
	TaskID         string
	Assignees      []string
	OccurredAt     time.Time
}

// New fills in ID and OccurredAt.
func New(t Type, sessionID, orgID, taskID string, assignees []string) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		SessionID:      sessionID,
		OrganizationID: orgID,
		TaskID:         taskID,
		Assignees:      assignees,
		OccurredAt:     time.Now().UTC(),
	}
}

type Handler func(ctx context.Context, evt Event) error

// Bus delivers events synchronously to every subscriber of the event type,
// in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	logger   *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		handlers: make(map[Type][]Handler),
		logger:   logger,
	}
}

func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish runs every handler even if an earlier one fails; the returned error
// joins all handler errors.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[evt.Type]...)
	b.mu.RUnlock()

	metrics.IncrementTaskEvent(string(evt.Type))

	if len(hs) == 0 {
		b.logger.Debug("No handler for event", zap.String("type", string(evt.Type)))
		return nil
	}

	var errs []error
	for _, h := range hs {
		if err := b.call(ctx, h, evt); err != nil {
			b.logger.Warn("Event handler failed",
				zap.String("type", string(evt.Type)),
				zap.String("event_id", evt.ID),
				zap.String("task_id", evt.TaskID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) call(ctx context.Context, h Handler, evt Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("event handler panic: %v", rec)
		}
	}()
	return h(ctx, evt)
}
