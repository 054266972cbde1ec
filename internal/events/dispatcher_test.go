package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

func TestPublishInvokesHandlersAndSwallowsFailures(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	d := NewInMemoryDispatcher(zap.New(core))

	var seen []string
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		seen = append(seen, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		panic("second handler")
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		seen = append(seen, "third")
		return nil
	})
	d.Subscribe(EventReplyAdded, func(ctx context.Context, e Event) error {
		seen = append(seen, "reply")
		return nil
	})

	event := New(EventTicketCreated, "t-1", domain.SystemActor, time.Now(), TicketCreatedPayload{TicketNumber: "ACM-202610-0001"})
	require.NoError(t, d.Publish(context.Background(), event))

	assert.Equal(t, []string{"first", "third"}, seen)
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}

func TestNewEventCarriesActor(t *testing.T) {
	actor := domain.Actor{ID: "agent-7", Name: "Sam", Type: domain.ActorTypeAgent}
	event := New(EventTicketsLinked, "t-2", actor, time.Date(2026, 10, 1, 9, 0, 0, 0, time.FixedZone("X", 3600)), nil)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "Sam", event.Actor.Name)
	require.NotNil(t, event.Actor.ID)
	assert.Equal(t, "agent-7", *event.Actor.ID)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
}
