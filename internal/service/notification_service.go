package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/observability"
)

// Channel is a notification route.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// Delivery is one notification produced for an event.
type Delivery struct {
	Channel   Channel
	Target    string
	EventType events.EventType
	TicketID  string
}

// NotificationService turns ticket events into deliveries. Delivery itself is
// stubbed and only logged.
type NotificationService struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		logger: observability.OrNop(logger).Named("notifications"),
		cfg:    cfg,
	}
}

// Plan lists the deliveries event should produce. Customer-facing events go to
// email and webhook, internal notes go nowhere, everything else is webhook only.
func (n *NotificationService) Plan(event events.Event) []Delivery {
	var channels []Channel
	switch event.Type {
	case events.EventTicketCreated, events.EventMarkedDuplicate:
		channels = []Channel{ChannelEmail, ChannelWebhook}
	case events.EventReplyAdded:
		payload, ok := event.Payload.(events.ReplyAddedPayload)
		if ok && payload.IsInternalNote {
			return nil
		}
		channels = []Channel{ChannelEmail}
	default:
		channels = []Channel{ChannelWebhook}
	}

	deliveries := make([]Delivery, 0, len(channels))
	for _, channel := range channels {
		target := n.target(channel)
		if target == "" {
			continue
		}
		deliveries = append(deliveries, Delivery{
			Channel:   channel,
			Target:    target,
			EventType: event.Type,
			TicketID:  event.TicketID,
		})
	}
	return deliveries
}

// Deliver sends every planned delivery for event.
func (n *NotificationService) Deliver(ctx context.Context, event events.Event) error {
	for _, d := range n.Plan(event) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n.logger.Info("notification sent",
			zap.String("channel", string(d.Channel)),
			zap.String("target", d.Target),
			zap.String("event_type", string(d.EventType)),
			zap.String("event_id", event.ID),
			zap.String("ticket_id", d.TicketID))
	}
	return nil
}

func (n *NotificationService) target(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return strings.TrimSpace(n.cfg.EmailFrom)
	case ChannelWebhook:
		return strings.TrimSpace(n.cfg.WebhookURL)
	}
	return ""
}
