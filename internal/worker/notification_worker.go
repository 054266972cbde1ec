package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
)

const (
	defaultQueueSize = 256
	deliveryTimeout  = 10 * time.Second
)

var errQueueFull = errors.New("notification queue full")

// Notifier delivers notifications for one event.
type Notifier interface {
	Deliver(ctx context.Context, event events.Event) error
}

// NotificationWorker takes events off the publishing path. Publishing only
// enqueues; Run delivers in the background.
type NotificationWorker struct {
	notifier Notifier
	queue    chan events.Event
	logger   *zap.Logger
	dropped  atomic.Int64
}

// NewNotificationWorker builds a worker with a bounded queue.
func NewNotificationWorker(notifier Notifier, queueSize int, logger *zap.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &NotificationWorker{
		notifier: notifier,
		queue:    make(chan events.Event, queueSize),
		logger:   observability.OrNop(logger).Named("notification_worker"),
	}
}

// Subscribe registers the worker for every event type the core emits.
func (w *NotificationWorker) Subscribe(dispatcher events.Dispatcher) {
	for _, eventType := range events.AllEventTypes {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (w *NotificationWorker) Dropped() int64 {
	return w.dropped.Load()
}

// Run delivers queued events until ctx is done, then drains what is already queued.
func (w *NotificationWorker) Run(ctx context.Context) {
	for {
		select {
		case event := <-w.queue:
			w.deliver(event)
		case <-ctx.Done():
			for {
				select {
				case event := <-w.queue:
					w.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
		return nil
	default:
		w.dropped.Add(1)
		return errQueueFull
	}
}

func (w *NotificationWorker) deliver(event events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if err := w.notifier.Deliver(ctx, event); err != nil {
		w.logger.Warn("notification delivery failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
