package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/ticket-engine/internal/auth"
	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/sequence"
	"github.com/spec-kit/ticket-engine/internal/sla"
)

var baseTime = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires every service against one memStore.
type harness struct {
	store     *memStore
	tx        *memTx
	publisher *recordingPublisher
	metrics   *observability.Metrics
	clock     *testClock
	actor     domain.Actor

	entities      *EntityService
	agents        *AgentService
	tickets       *TicketService
	replies       *ReplyService
	relationships *RelationshipService
	slas          *SLAService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLocker(t, lock.NewMemoryLocker())
}

// newHarnessWithLocker is newHarness with the ticket number lock swapped out.
func newHarnessWithLocker(t *testing.T, locker lock.Locker) *harness {
	t.Helper()
	store := newMemStore()
	logger := zaptest.NewLogger(t)
	h := &harness{
		store:     store,
		tx:        &memTx{store: store},
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetrics(),
		clock:     &testClock{now: baseTime},
		actor:     domain.Actor{ID: uuid.NewString(), Name: "Dana Agent", Email: "dana@support.test", Type: domain.ActorTypeAgent},
	}

	ticketRepo := memTicketRepo{s: store}
	replyRepo := memReplyRepo{s: store}
	attachmentRepo := memAttachmentRepo{s: store}
	relationshipRepo := memRelationshipRepo{s: store}
	historyRepo := memHistoryRepo{s: store}
	entityRepo := memEntityRepo{s: store}
	ruleRepo := memRuleRepo{s: store}

	h.entities = NewEntityService(EntityDependencies{EntityRepo: entityRepo, TicketRepo: ticketRepo, Logger: logger})
	h.agents = NewAgentService(AgentDependencies{AgentRepo: memAgentRepo{s: store}, EntityRepo: entityRepo})
	numbers := sequence.NewGenerator(locker, ticketRepo, sequence.Options{
		LockTimeout: time.Second,
		Now:         h.clock.Now,
		Logger:      logger,
		Metrics:     h.metrics,
	})
	h.tickets = NewTicketService(TicketDependencies{
		TicketRepo:       ticketRepo,
		ReplyRepo:        replyRepo,
		AttachmentRepo:   attachmentRepo,
		RelationshipRepo: relationshipRepo,
		HistoryRepo:      historyRepo,
		Entities:         h.entities,
		Agents:           h.agents,
		Numbers:          numbers,
		Rules:            sla.NewResolver(ruleRepo),
		Tx:               h.tx,
		Publisher:        h.publisher,
		Logger:           logger,
		Metrics:          h.metrics,
		Clock:            h.clock.Now,
	})
	h.replies = NewReplyService(ReplyDependencies{
		TicketRepo:     ticketRepo,
		ReplyRepo:      replyRepo,
		AttachmentRepo: attachmentRepo,
		Tx:             h.tx,
		Publisher:      h.publisher,
		Logger:         logger,
		Clock:          h.clock.Now,
	})
	h.relationships = NewRelationshipService(RelationshipDependencies{
		Tickets:          h.tickets,
		TicketRepo:       ticketRepo,
		ReplyRepo:        replyRepo,
		AttachmentRepo:   attachmentRepo,
		RelationshipRepo: relationshipRepo,
		HistoryRepo:      historyRepo,
		Notes:            h.replies,
		Tx:               h.tx,
		Publisher:        h.publisher,
		Logger:           logger,
		Metrics:          h.metrics,
		Clock:            h.clock.Now,
	})
	h.slas = NewSLAService(SLADependencies{
		RuleRepo:   ruleRepo,
		TicketRepo: ticketRepo,
		Entities:   h.entities,
		Logger:     logger,
		Metrics:    h.metrics,
		Clock:      h.clock.Now,
		SweepBatch: 2,
	})
	return h
}

// ctx carries the harness agent as the acting user.
func (h *harness) ctx() context.Context {
	return auth.WithActor(context.Background(), h.actor)
}

func (h *harness) entity(t *testing.T, name string, parentID *string) *domain.Entity {
	t.Helper()
	entity, err := h.entities.Create(h.ctx(), EntityCreateInput{Name: name, ParentID: parentID})
	require.NoError(t, err)
	return entity
}

func (h *harness) ticket(t *testing.T, entityID, subject string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.Create(h.ctx(), TicketCreateInput{
		EntityID:      entityID,
		Subject:       subject,
		Description:   "Details for " + subject,
		CustomerName:  "Casey Customer",
		CustomerEmail: "casey@customer.test",
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) reply(t *testing.T, ticketID, content string) *domain.Reply {
	t.Helper()
	reply, err := h.replies.AddReply(h.ctx(), ReplyInput{TicketID: ticketID, Content: content})
	require.NoError(t, err)
	return reply
}

func (h *harness) attachment(t *testing.T, ticketID, name string) *domain.Attachment {
	t.Helper()
	attachment, err := h.replies.AddAttachment(h.ctx(), AttachmentInput{
		TicketID:   ticketID,
		FileName:   name,
		MimeType:   "text/plain",
		SizeBytes:  42,
		StorageKey: "uploads/" + name,
	})
	require.NoError(t, err)
	return attachment
}

func (h *harness) stored(t *testing.T, id string) domain.Ticket {
	t.Helper()
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	ticket, ok := h.store.tickets[id]
	require.True(t, ok, "ticket %s not stored", id)
	return ticket
}

func (h *harness) replyTickets(ids ...string) []string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = h.store.replies[id].TicketID
	}
	return out
}

// failingReleaseLocker grants real leases whose Release reports err anyway.
type failingReleaseLocker struct {
	lock.Locker
	err error
}

func (l failingReleaseLocker) Acquire(ctx context.Context, name string, timeout time.Duration) (lock.Lease, error) {
	lease, err := l.Locker.Acquire(ctx, name, timeout)
	if err != nil {
		return nil, err
	}
	return failingLease{Lease: lease, err: l.err}, nil
}

type failingLease struct {
	lock.Lease
	err error
}

func (l failingLease) Release(ctx context.Context) error {
	_ = l.Lease.Release(ctx)
	return l.err
}

// scriptedNumbers hands out numbers in order without any lock.
type scriptedNumbers struct {
	mu      sync.Mutex
	numbers []string
	calls   int
}

func (n *scriptedNumbers) Reserve(ctx context.Context, _ *domain.Entity, fn func(ctx context.Context, number string) error) error {
	n.mu.Lock()
	number := n.numbers[n.calls%len(n.numbers)]
	n.calls++
	n.mu.Unlock()
	return fn(ctx, number)
}

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
