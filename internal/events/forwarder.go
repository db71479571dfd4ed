package events

import (
	"context"

	mqcontracts "taskhub/contracts/mq"

	"go.uber.org/zap"
)

// Publisher is the subset of pkg/mq.Publisher the forwarder needs.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// Forwarder copies bus events onto the message broker so other gateway
// instances can invalidate their caches.
type Forwarder struct {
	pub    Publisher
	logger *zap.Logger
}

func NewForwarder(pub Publisher, logger *zap.Logger) *Forwarder {
	return &Forwarder{pub: pub, logger: logger}
}

// Attach subscribes the forwarder to every task event type on bus.
func (f *Forwarder) Attach(bus *Bus) {
	for _, t := range []Type{TaskCompleted, TaskReopened, TaskDeleted} {
		bus.Subscribe(t, f.Handle)
	}
}

// Handle publishes evt. A broker failure is logged and swallowed: the local
// session has already been updated.
func (f *Forwarder) Handle(ctx context.Context, evt Event) error {
	if err := f.pub.Publish(string(evt.Type), ToPayload(evt)); err != nil {
		f.logger.Error("Failed to forward task event",
			zap.String("type", string(evt.Type)),
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
	}
	return nil
}

func ToPayload(evt Event) mqcontracts.TaskEventPayload {
	return mqcontracts.TaskEventPayload{
		EventID:        evt.ID,
		Type:           string(evt.Type),
		SessionID:      evt.SessionID,
		OrganizationID: evt.OrganizationID,
		TaskID:         evt.TaskID,
		Assignees:      evt.Assignees,
		OccurredAt:     evt.OccurredAt,
	}
}

func FromPayload(p mqcontracts.TaskEventPayload) Event {
	return Event{
		ID:             p.EventID,
		Type:           Type(p.Type),
		SessionID:      p.SessionID,
		OrganizationID: p.OrganizationID,
		TaskID:         p.TaskID,
		Assignees:      p.Assignees,
		OccurredAt:     p.OccurredAt,
	}
}
