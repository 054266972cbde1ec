package service

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/sequence"
)

// memStore is an in-memory stand-in for the Postgres schema. Every repository
// below shares it so that memTx can snapshot and restore all tables at once.
type memStore struct {
	mu            sync.Mutex
	entities      map[string]domain.Entity
	agents        map[string]domain.Agent
	tickets       map[string]domain.Ticket
	replies       map[string]domain.Reply
	attachments   map[string]domain.Attachment
	relationships map[string]domain.TicketRelationship
	history       map[string]domain.TicketHistory
	rules         map[string]domain.SLARule
	order         map[string]int
	counter       int
	failures      map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		entities:      map[string]domain.Entity{},
		agents:        map[string]domain.Agent{},
		tickets:       map[string]domain.Ticket{},
		replies:       map[string]domain.Reply{},
		attachments:   map[string]domain.Attachment{},
		relationships: map[string]domain.TicketRelationship{},
		history:       map[string]domain.TicketHistory{},
		rules:         map[string]domain.SLARule{},
		order:         map[string]int{},
		failures:      map[string]error{},
	}
}

// failOn makes the named repository operation return err until cleared.
func (s *memStore) failOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// must be called with mu held
func (s *memStore) injected(op string) error {
	return s.failures[op]
}

// must be called with mu held
func (s *memStore) newID() string {
	s.counter++
	id := uuid.NewString()
	s.order[id] = s.counter
	return id
}

func (s *memStore) byOrder(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return s.order[ids[i]] < s.order[ids[j]] })
}

type memSnapshot struct {
	entities      map[string]domain.Entity
	agents        map[string]domain.Agent
	tickets       map[string]domain.Ticket
	replies       map[string]domain.Reply
	attachments   map[string]domain.Attachment
	relationships map[string]domain.TicketRelationship
	history       map[string]domain.TicketHistory
	rules         map[string]domain.SLARule
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets := make(map[string]domain.Ticket, len(s.tickets))
	for id, t := range s.tickets {
		t.MetaData = maps.Clone(t.MetaData)
		tickets[id] = t
	}
	return memSnapshot{
		entities:      maps.Clone(s.entities),
		agents:        maps.Clone(s.agents),
		tickets:       tickets,
		replies:       maps.Clone(s.replies),
		attachments:   maps.Clone(s.attachments),
		relationships: maps.Clone(s.relationships),
		history:       maps.Clone(s.history),
		rules:         maps.Clone(s.rules),
	}
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = snap.entities
	s.agents = snap.agents
	s.tickets = snap.tickets
	s.replies = snap.replies
	s.attachments = snap.attachments
	s.relationships = snap.relationships
	s.history = snap.history
	s.rules = snap.rules
}

// memTx restores every table when fn fails. Nested calls join the outer one.
type memTx struct {
	store *memStore
	// commits and rollbacks count outermost transactions.
	commits   int
	rollbacks int
}

type memTxKey struct{}

func (m *memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	snap := m.store.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.store.restore(snap)
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

// entities

type memEntityRepo struct{ s *memStore }

func (r memEntityRepo) Create(_ context.Context, e *domain.Entity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.entities {
		if existing.Slug == e.Slug {
			return fmt.Errorf("%w: entities_slug_key", repository.ErrDuplicate)
		}
	}
	e.ID = r.s.newID()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	r.s.entities[e.ID] = *e
	return nil
}

func (r memEntityRepo) Update(_ context.Context, e *domain.Entity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.entities[e.ID]; !ok {
		return pgx.ErrNoRows
	}
	for id, existing := range r.s.entities {
		if id != e.ID && existing.Slug == e.Slug {
			return fmt.Errorf("%w: entities_slug_key", repository.ErrDuplicate)
		}
	}
	r.s.entities[e.ID] = *e
	return nil
}

func (r memEntityRepo) GetByID(_ context.Context, id string) (*domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entities[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &e, nil
}

func (r memEntityRepo) GetBySlug(_ context.Context, slug string) (*domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.entities {
		if e.Slug == slug {
			return &e, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memEntityRepo) List(_ context.Context, f repository.EntityFilter) ([]domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, e := range r.s.entities {
		if f.RootsOnly && e.ParentID != nil {
			continue
		}
		if f.ParentID != nil && (e.ParentID == nil || *e.ParentID != *f.ParentID) {
			continue
		}
		if f.Status != nil && e.Status != *f.Status {
			continue
		}
		keys = append(keys, id)
	}
	r.s.byOrder(keys)
	out := make([]domain.Entity, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.entities[id])
	}
	return out, nil
}

func (r memEntityRepo) CountChildren(_ context.Context, id string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.entities {
		if e.ParentID != nil && *e.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (r memEntityRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.entities[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.entities, id)
	return nil
}

// agents

type memAgentRepo struct{ s *memStore }

func (r memAgentRepo) Create(_ context.Context, a *domain.Agent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.agents {
		if existing.Email == a.Email {
			return fmt.Errorf("%w: agents_email_key", repository.ErrDuplicate)
		}
	}
	a.ID = r.s.newID()
	r.s.agents[a.ID] = *a
	return nil
}

func (r memAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.agents[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &a, nil
}

func (r memAgentRepo) List(_ context.Context, f repository.AgentFilter) ([]domain.Agent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Agent
	for _, a := range r.s.agents {
		if f.EntityID != nil && (a.EntityID == nil || *a.EntityID != *f.EntityID) {
			continue
		}
		if f.Active != nil && a.Active != *f.Active {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// tickets

type memTicketRepo struct{ s *memStore }

func (r memTicketRepo) Create(_ context.Context, t *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("tickets.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.tickets {
		if existing.TicketNumber == t.TicketNumber {
			return fmt.Errorf("%w: idx_tickets_number", repository.ErrDuplicate)
		}
	}
	t.ID = r.s.newID()
	t.Version = 1
	stored := *t
	stored.MetaData = maps.Clone(t.MetaData)
	r.s.tickets[t.ID] = stored
	return nil
}

func (r memTicketRepo) Update(_ context.Context, t *domain.Ticket, expectedVersion *int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("tickets.Update"); err != nil {
		return err
	}
	current, ok := r.s.tickets[t.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if expectedVersion != nil && current.Version != *expectedVersion {
		return repository.ErrVersionConflict
	}
	stored := *t
	stored.TicketNumber = current.TicketNumber
	stored.CreatedAt = current.CreatedAt
	stored.Version = current.Version + 1
	stored.MetaData = maps.Clone(t.MetaData)
	r.s.tickets[t.ID] = stored
	t.Version = stored.Version
	return nil
}

func (r memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	t.MetaData = maps.Clone(t.MetaData)
	return &t, nil
}

func (r memTicketRepo) GetByNumber(_ context.Context, number string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tickets {
		if t.TicketNumber == number {
			t.MetaData = maps.Clone(t.MetaData)
			return &t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r memTicketRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("tickets.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.tickets, id)
	return nil
}

func (r memTicketRepo) matching(f repository.TicketFilter) []string {
	in := func(v string, set []string) bool {
		if len(set) == 0 {
			return true
		}
		for _, candidate := range set {
			if candidate == v {
				return true
			}
		}
		return false
	}
	var keys []string
	for id, t := range r.s.tickets {
		switch {
		case len(f.EntityIDs) > 0 && !in(t.EntityID, f.EntityIDs):
		case !in(string(t.Status), statusStrings(f.Statuses)):
		case len(f.ExcludeStatuses) > 0 && in(string(t.Status), statusStrings(f.ExcludeStatuses)):
		case !in(string(t.Priority), priorityStrings(f.Priorities)):
		case !in(string(t.SLAStatus), slaStrings(f.SLAStatuses)):
		case f.Category != nil && t.Category != *f.Category:
		case f.Unassigned && t.AssignedTo != nil:
		case f.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssignedTo):
		case f.CustomerEmail != nil && !strings.EqualFold(t.CustomerEmail, *f.CustomerEmail):
		case f.SearchTerm != nil && !strings.Contains(strings.ToLower(t.Subject+" "+t.Description+" "+t.TicketNumber), strings.ToLower(*f.SearchTerm)):
		default:
			keys = append(keys, id)
		}
	}
	r.s.byOrder(keys)
	if !f.Ascending {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	return keys
}

func (r memTicketRepo) ListWithFilter(_ context.Context, f repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	keys := r.matching(f)
	if f.Offset > len(keys) {
		return nil, nil
	}
	keys = keys[f.Offset:]
	if f.Limit > 0 && len(keys) > f.Limit {
		keys = keys[:f.Limit]
	}
	out := make([]domain.Ticket, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.tickets[id])
	}
	return out, nil
}

func (r memTicketRepo) Count(_ context.Context, f repository.TicketFilter) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.matching(f)), nil
}

func (r memTicketRepo) CountByEntity(_ context.Context, entityID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, t := range r.s.tickets {
		if t.EntityID == entityID {
			n++
		}
	}
	return n, nil
}

func (r memTicketRepo) MaxSequence(_ context.Context, base string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	highest := 0
	for _, t := range r.s.tickets {
		if seq, ok := sequence.ParseSequence(t.TicketNumber, base); ok && seq > highest {
			highest = seq
		}
	}
	return highest, nil
}

func (r memTicketRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("tickets.Touch"); err != nil {
		return err
	}
	t, ok := r.s.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.UpdatedAt = at
	r.s.tickets[id] = t
	return nil
}

func (r memTicketRepo) SetFirstResponse(_ context.Context, id string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if t.FirstResponseAt != nil {
		return false, nil
	}
	t.FirstResponseAt = &at
	r.s.tickets[id] = t
	return true, nil
}

func (r memTicketRepo) UpdateSLAStatus(_ context.Context, id string, status domain.SLAStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	t.SLAStatus = status
	r.s.tickets[id] = t
	return nil
}

func statusStrings(v []domain.TicketStatus) []string     { return toStrings(v) }
func priorityStrings(v []domain.TicketPriority) []string { return toStrings(v) }
func slaStrings(v []domain.SLAStatus) []string           { return toStrings(v) }

func toStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// replies

type memReplyRepo struct{ s *memStore }

func (r memReplyRepo) Create(_ context.Context, reply *domain.Reply) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("replies.Create"); err != nil {
		return err
	}
	if _, ok := r.s.tickets[reply.TicketID]; !ok {
		return pgx.ErrNoRows
	}
	reply.ID = r.s.newID()
	r.s.replies[reply.ID] = *reply
	return nil
}

func (r memReplyRepo) GetByID(_ context.Context, id string) (*domain.Reply, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reply, ok := r.s.replies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &reply, nil
}

func (r memReplyRepo) ListByTicket(_ context.Context, ticketID string, includeInternal bool) ([]domain.Reply, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, reply := range r.s.replies {
		if reply.TicketID != ticketID || (!includeInternal && reply.IsInternalNote) {
			continue
		}
		keys = append(keys, id)
	}
	r.s.byOrder(keys)
	out := make([]domain.Reply, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.replies[id])
	}
	return out, nil
}

func (r memReplyRepo) CountByTicket(_ context.Context, ticketID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, reply := range r.s.replies {
		if reply.TicketID == ticketID {
			n++
		}
	}
	return n, nil
}

func (r memReplyRepo) ReassignTicket(_ context.Context, from, to string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("replies.ReassignTicket"); err != nil {
		return 0, err
	}
	n := 0
	for id, reply := range r.s.replies {
		if reply.TicketID == from {
			reply.TicketID = to
			r.s.replies[id] = reply
			n++
		}
	}
	return n, nil
}

func (r memReplyRepo) ReassignReplies(_ context.Context, replyIDs []string, from, to string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("replies.ReassignReplies"); err != nil {
		return 0, err
	}
	n := 0
	for _, id := range replyIDs {
		reply, ok := r.s.replies[id]
		if !ok || reply.TicketID != from {
			continue
		}
		reply.TicketID = to
		r.s.replies[id] = reply
		n++
	}
	return n, nil
}

func (r memReplyRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, reply := range r.s.replies {
		if reply.TicketID == ticketID {
			delete(r.s.replies, id)
		}
	}
	return nil
}

// attachments

type memAttachmentRepo struct{ s *memStore }

func (r memAttachmentRepo) Create(_ context.Context, a *domain.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.newID()
	r.s.attachments[a.ID] = *a
	return nil
}

func (r memAttachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, a := range r.s.attachments {
		if a.TicketID == ticketID {
			keys = append(keys, id)
		}
	}
	r.s.byOrder(keys)
	out := make([]domain.Attachment, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.attachments[id])
	}
	return out, nil
}

func (r memAttachmentRepo) ReassignTicket(_ context.Context, from, to string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("attachments.ReassignTicket"); err != nil {
		return 0, err
	}
	n := 0
	for id, a := range r.s.attachments {
		if a.TicketID == from {
			a.TicketID = to
			r.s.attachments[id] = a
			n++
		}
	}
	return n, nil
}

func (r memAttachmentRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, a := range r.s.attachments {
		if a.TicketID == ticketID {
			delete(r.s.attachments, id)
		}
	}
	return nil
}

// relationships

type memRelationshipRepo struct{ s *memStore }

func (r memRelationshipRepo) Create(_ context.Context, rel *domain.TicketRelationship) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("relationships.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.relationships {
		if existing.ParentTicketID == rel.ParentTicketID && existing.ChildTicketID == rel.ChildTicketID && existing.Type == rel.Type {
			return fmt.Errorf("%w: idx_relationships_tuple", repository.ErrDuplicate)
		}
	}
	rel.ID = r.s.newID()
	r.s.relationships[rel.ID] = *rel
	return nil
}

func (r memRelationshipRepo) GetByID(_ context.Context, id string) (*domain.TicketRelationship, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rel, ok := r.s.relationships[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rel, nil
}

func (r memRelationshipRepo) Exists(_ context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rel := range r.s.relationships {
		if rel.ParentTicketID == parentID && rel.ChildTicketID == childID && rel.Type == relType {
			return true, nil
		}
	}
	return false, nil
}

func (r memRelationshipRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.RelatedTicket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, rel := range r.s.relationships {
		if rel.ParentTicketID == ticketID || rel.ChildTicketID == ticketID {
			keys = append(keys, id)
		}
	}
	r.s.byOrder(keys)
	out := make([]domain.RelatedTicket, 0, len(keys))
	for _, id := range keys {
		rel := r.s.relationships[id]
		related := domain.RelatedTicket{Relationship: rel, Direction: domain.DirectionParent, OtherTicketID: rel.ChildTicketID}
		if rel.ParentTicketID != ticketID {
			related.Direction = domain.DirectionChild
			related.OtherTicketID = rel.ParentTicketID
		}
		other := r.s.tickets[related.OtherTicketID]
		related.OtherNumber = other.TicketNumber
		related.OtherSubject = other.Subject
		related.OtherStatus = other.Status
		out = append(out, related)
	}
	return out, nil
}

func (r memRelationshipRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.relationships[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.relationships, id)
	return nil
}

func (r memRelationshipRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("relationships.DeleteByTicket"); err != nil {
		return err
	}
	for id, rel := range r.s.relationships {
		if rel.ParentTicketID == ticketID || rel.ChildTicketID == ticketID {
			delete(r.s.relationships, id)
		}
	}
	return nil
}

// history

type memHistoryRepo struct{ s *memStore }

func (r memHistoryRepo) Create(_ context.Context, h *domain.TicketHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("history.Create"); err != nil {
		return err
	}
	h.ID = r.s.newID()
	r.s.history[h.ID] = *h
	return nil
}

func (r memHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, h := range r.s.history {
		if h.TicketID == ticketID {
			keys = append(keys, id)
		}
	}
	r.s.byOrder(keys)
	out := make([]domain.TicketHistory, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.history[id])
	}
	return out, nil
}

func (r memHistoryRepo) DeleteByTicket(_ context.Context, ticketID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, h := range r.s.history {
		if h.TicketID == ticketID {
			delete(r.s.history, id)
		}
	}
	return nil
}

// sla rules

type memRuleRepo struct{ s *memStore }

func (r memRuleRepo) Create(_ context.Context, rule *domain.SLARule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule.ID = r.s.newID()
	rule.CreatedAt = time.Now().Add(time.Duration(r.s.counter) * time.Millisecond)
	rule.UpdatedAt = rule.CreatedAt
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r memRuleRepo) Update(_ context.Context, rule *domain.SLARule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[rule.ID]; !ok {
		return pgx.ErrNoRows
	}
	r.s.rules[rule.ID] = *rule
	return nil
}

func (r memRuleRepo) GetByID(_ context.Context, id string) (*domain.SLARule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &rule, nil
}

func (r memRuleRepo) ListActive(ctx context.Context, entityID *string) ([]domain.SLARule, error) {
	return r.List(ctx, repository.SLARuleFilter{EntityID: entityID, GlobalOnly: entityID == nil, ActiveOnly: true})
}

func (r memRuleRepo) List(_ context.Context, f repository.SLARuleFilter) ([]domain.SLARule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var keys []string
	for id, rule := range r.s.rules {
		switch {
		case f.GlobalOnly && rule.EntityID != nil:
		case !f.GlobalOnly && f.EntityID != nil && (rule.EntityID == nil || *rule.EntityID != *f.EntityID):
		case f.ActiveOnly && !rule.IsActive:
		default:
			keys = append(keys, id)
		}
	}
	r.s.byOrder(keys)
	out := make([]domain.SLARule, 0, len(keys))
	for _, id := range keys {
		out = append(out, r.s.rules[id])
	}
	return out, nil
}

func (r memRuleRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.rules[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.s.rules, id)
	return nil
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
