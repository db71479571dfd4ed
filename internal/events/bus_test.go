package events

import (
	"context"
	"errors"
	"testing"

	mqcontracts "taskhub/contracts/mq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishRunsHandlersInOrder(t *testing.T) {
	bus := NewBus(nil)
	var order []string
	bus.Subscribe(TaskCompleted, func(ctx context.Context, evt Event) error {
		order = append(order, "first")
		return nil
	})
	bus.Subscribe(TaskCompleted, func(ctx context.Context, evt Event) error {
		order = append(order, "second")
		return nil
	})
	bus.Subscribe(TaskDeleted, func(ctx context.Context, evt Event) error {
		order = append(order, "other")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), New(TaskCompleted, "s1", "o1", "T-1", nil)))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestPublishJoinsErrorsAndRecoversPanics(t *testing.T) {
	bus := NewBus(nil)
	errA := errors.New("a failed")
	ran := false
	bus.Subscribe(TaskDeleted, func(ctx context.Context, evt Event) error { return errA })
	bus.Subscribe(TaskDeleted, func(ctx context.Context, evt Event) error { panic("boom") })
	bus.Subscribe(TaskDeleted, func(ctx context.Context, evt Event) error { ran = true; return nil })

	err := bus.Publish(context.Background(), New(TaskDeleted, "s1", "o1", "T-1", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.Contains(t, err.Error(), "panic")
	assert.True(t, ran)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	assert.NoError(t, NewBus(nil).Publish(context.Background(), New(TaskReopened, "", "", "T-1", nil)))
}

type fakePublisher struct {
	keys     []string
	payloads []any
	err      error
}

func (f *fakePublisher) Publish(routingKey string, payload any) error {
	f.keys = append(f.keys, routingKey)
	f.payloads = append(f.payloads, payload)
	return f.err
}

func TestForwarderPublishesPayload(t *testing.T) {
	pub := &fakePublisher{}
	bus := NewBus(nil)
	NewForwarder(pub, zapNop()).Attach(bus)

	evt := New(TaskCompleted, "s1", "o1", "T-9", []string{"u1"})
	require.NoError(t, bus.Publish(context.Background(), evt))

	require.Equal(t, []string{mqcontracts.RoutingTaskCompleted}, pub.keys)
	p := pub.payloads[0].(mqcontracts.TaskEventPayload)
	assert.Equal(t, evt.ID, p.EventID)
	assert.Equal(t, evt, FromPayload(p))
}

func TestForwarderSwallowsBrokerErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	f := NewForwarder(pub, zapNop())
	assert.NoError(t, f.Handle(context.Background(), New(TaskDeleted, "s1", "o1", "T-1", nil)))
}
