package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (r *recordingNotifier) Deliver(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestNotificationWorker_DeliversPublishedEvents(t *testing.T) {
	notifier := &recordingNotifier{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	w := NewNotificationWorker(notifier, 8, nil)
	w.Subscribe(dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	for _, eventType := range []events.EventType{events.EventTicketCreated, events.EventTicketsMerged, events.EventTicketSplit} {
		require.NoError(t, dispatcher.Publish(context.Background(), events.New(eventType, "t-1", domain.SystemActor, time.Now(), nil)))
	}

	assert.Eventually(t, func() bool { return notifier.count() == 3 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestNotificationWorker_DropsWhenQueueIsFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := &recordingNotifier{}
	dispatcher := events.NewInMemoryDispatcher(zap.New(core))
	w := NewNotificationWorker(notifier, 2, nil)
	w.Subscribe(dispatcher)

	for i := 0; i < 3; i++ {
		require.NoError(t, dispatcher.Publish(context.Background(), events.New(events.EventReplyAdded, "t-1", domain.SystemActor, time.Now(), nil)))
	}
	assert.EqualValues(t, 1, w.Dropped())
	assert.Equal(t, 1, logs.FilterMessage("event handler failed").Len())

	// Run drains the queued events even when ctx is already done.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)
	assert.Equal(t, 2, notifier.count())
}

func TestNotificationWorker_LogsDeliveryFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	w := NewNotificationWorker(notifier, 1, zap.New(core))

	require.NoError(t, w.enqueue(context.Background(), events.New(events.EventTicketCreated, "t-1", domain.SystemActor, time.Now(), nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Run(ctx)

	assert.Equal(t, 1, logs.FilterMessage("notification delivery failed").Len())
}
