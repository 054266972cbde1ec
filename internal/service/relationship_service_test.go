package service

import (
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

var numberPattern = regexp.MustCompile(`^[A-Z0-9]{3}-\d{6}-\d{4}$`)

func TestMerge_MovesThreadAndMarksSecondary(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	primary := h.ticket(t, entity.ID, "Printer offline")
	secondary := h.ticket(t, entity.ID, "Printer still offline")

	primaryReplies := []string{h.reply(t, primary.ID, "a1").ID, h.reply(t, primary.ID, "a2").ID}
	secondaryReplies := []string{
		h.reply(t, secondary.ID, "b1").ID,
		h.reply(t, secondary.ID, "b2").ID,
		h.reply(t, secondary.ID, "b3").ID,
	}
	h.attachment(t, secondary.ID, "log.txt")
	h.publisher.reset()

	rel, err := h.relationships.Merge(h.ctx(), primary.ID, secondary.ID, "same printer")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipMerged, rel.Type)
	assert.Equal(t, primary.ID, rel.ParentTicketID)
	assert.Equal(t, secondary.ID, rel.ChildTicketID)
	assert.Equal(t, "same printer", rel.Notes)

	for _, ticketID := range h.replyTickets(append(primaryReplies, secondaryReplies...)...) {
		assert.Equal(t, primary.ID, ticketID)
	}
	attachments, err := h.replies.ListAttachments(h.ctx(), primary.ID)
	require.NoError(t, err)
	assert.Len(t, attachments, 1)

	merged := h.stored(t, secondary.ID)
	assert.Equal(t, domain.TicketStatusMerged, merged.Status)

	thread, err := h.replies.ListReplies(h.ctx(), primary.ID, true)
	require.NoError(t, err)
	require.Len(t, thread, 6)
	note := thread[5]
	assert.Equal(t, domain.AuthorTypeSystem, note.AuthorType)
	assert.True(t, note.IsInternalNote)
	assert.Contains(t, note.Content, secondary.TicketNumber)

	related, err := h.relationships.Related(h.ctx(), secondary.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, domain.DirectionChild, related[0].Direction)
	assert.Equal(t, primary.ID, related[0].OtherTicketID)

	assert.Equal(t, []events.EventType{events.EventTicketsMerged, events.EventStatusChanged}, h.publisher.types())
	assert.EqualValues(t, 1, h.metrics.OperationCount(opMerge, observability.OutcomeSuccess))
}

func TestMerge_RollsBackEverythingOnFailure(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	primary := h.ticket(t, entity.ID, "Printer offline")
	secondary := h.ticket(t, entity.ID, "Printer still offline")
	h.reply(t, primary.ID, "a1")
	h.reply(t, primary.ID, "a2")
	secondaryReplies := []string{
		h.reply(t, secondary.ID, "b1").ID,
		h.reply(t, secondary.ID, "b2").ID,
		h.reply(t, secondary.ID, "b3").ID,
	}
	h.attachment(t, secondary.ID, "log.txt")
	before := h.stored(t, secondary.ID)
	h.publisher.reset()

	h.store.failOn("attachments.ReassignTicket", errors.New("connection reset"))
	_, err := h.relationships.Merge(h.ctx(), primary.ID, secondary.ID, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsTransaction(err))
	details := apperrors.ToDomainError(err).Details
	assert.Equal(t, primary.ID, details["primary_id"])
	assert.Equal(t, secondary.ID, details["secondary_id"])

	for _, ticketID := range h.replyTickets(secondaryReplies...) {
		assert.Equal(t, secondary.ID, ticketID, "replies must stay on the secondary")
	}
	attachments, err := h.replies.ListAttachments(h.ctx(), secondary.ID)
	require.NoError(t, err)
	assert.Len(t, attachments, 1)

	after := h.stored(t, secondary.ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.Version, after.Version)

	thread, err := h.replies.ListReplies(h.ctx(), primary.ID, true)
	require.NoError(t, err)
	assert.Len(t, thread, 2)

	related, err := h.relationships.Related(h.ctx(), primary.ID)
	require.NoError(t, err)
	assert.Empty(t, related)
	assert.Empty(t, h.publisher.types())
	assert.Equal(t, 1, h.tx.rollbacks)
	assert.EqualValues(t, 1, h.metrics.OperationCount(opMerge, observability.OutcomeFailure))

	// the same merge succeeds once the fault clears
	h.store.failOn("attachments.ReassignTicket", nil)
	_, err = h.relationships.Merge(h.ctx(), primary.ID, secondary.ID, "")
	require.NoError(t, err)
}

func TestMerge_MergedTicketsAreTerminal(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	a := h.ticket(t, entity.ID, "A")
	b := h.ticket(t, entity.ID, "B")
	c := h.ticket(t, entity.ID, "C")

	_, err := h.relationships.Merge(h.ctx(), a.ID, b.ID, "")
	require.NoError(t, err)

	_, err = h.relationships.Merge(h.ctx(), a.ID, b.ID, "")
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "relationship_exists", apperrors.ReasonOf(err))

	_, err = h.relationships.Merge(h.ctx(), c.ID, b.ID, "")
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "ticket_merged", apperrors.ReasonOf(err))

	_, err = h.relationships.Merge(h.ctx(), b.ID, c.ID, "")
	assert.Equal(t, "ticket_merged", apperrors.ReasonOf(err))

	_, err = h.relationships.MarkDuplicate(h.ctx(), a.ID, b.ID, "")
	assert.Equal(t, "ticket_merged", apperrors.ReasonOf(err))

	_, err = h.relationships.Split(h.ctx(), SplitInput{ParentID: b.ID, Subject: "child"})
	assert.Equal(t, "ticket_merged", apperrors.ReasonOf(err))
}

func TestSplit_MovesOnlyListedReplies(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	parent := h.ticket(t, entity.ID, "Two problems")
	var replyIDs []string
	for _, body := range []string{"r1", "r2", "r3", "r4", "r5"} {
		replyIDs = append(replyIDs, h.reply(t, parent.ID, body).ID)
	}
	moved := []string{replyIDs[1], replyIDs[3], replyIDs[4]}
	h.publisher.reset()

	child, err := h.relationships.Split(h.ctx(), SplitInput{
		ParentID: parent.ID,
		Subject:  "Second problem",
		ReplyIDs: append(moved, replyIDs[1]),
		Notes:    "separate issue",
	})
	require.NoError(t, err)

	assert.NotEqual(t, parent.ID, child.ID)
	assert.Regexp(t, numberPattern, child.TicketNumber)
	assert.NotEqual(t, parent.TicketNumber, child.TicketNumber)
	assert.Equal(t, parent.EntityID, child.EntityID)
	assert.Equal(t, parent.CustomerEmail, child.CustomerEmail)
	assert.Equal(t, parent.CustomerName, child.CustomerName)
	assert.Equal(t, parent.Priority, child.Priority)
	assert.Equal(t, domain.TicketStatusNew, child.Status)
	assert.Contains(t, child.Description, parent.TicketNumber)

	assert.Equal(t, []string{parent.ID, parent.ID}, h.replyTickets(replyIDs[0], replyIDs[2]))
	assert.Equal(t, []string{child.ID, child.ID, child.ID}, h.replyTickets(moved...))

	related, err := h.relationships.Related(h.ctx(), parent.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, domain.RelationshipSplit, related[0].Relationship.Type)
	assert.Equal(t, domain.DirectionParent, related[0].Direction)
	assert.Equal(t, child.ID, related[0].OtherTicketID)

	childThread, err := h.replies.ListReplies(h.ctx(), child.ID, false)
	require.NoError(t, err)
	assert.Len(t, childThread, 3, "split notes are internal")

	assert.Equal(t, []events.EventType{events.EventTicketSplit, events.EventTicketCreated}, h.publisher.types())
}

func TestSplit_RejectsForeignReply(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	parent := h.ticket(t, entity.ID, "Parent")
	other := h.ticket(t, entity.ID, "Other")
	own := h.reply(t, parent.ID, "mine")
	foreign := h.reply(t, other.ID, "theirs")

	_, err := h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "x", ReplyIDs: []string{own.ID, foreign.ID}})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "reply_not_on_ticket", apperrors.ReasonOf(err))

	_, err = h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "x", ReplyIDs: []string{"7f1c8c6e-2d6f-4a55-9a4e-1d1c2b3a4f50"}})
	assert.Equal(t, "reply_not_on_ticket", apperrors.ReasonOf(err))

	count, err := h.tickets.Count(h.ctx(), TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []string{parent.ID}, h.replyTickets(own.ID))
}

func TestSplit_RollsBackNewTicketOnFailure(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	parent := h.ticket(t, entity.ID, "Parent")
	reply := h.reply(t, parent.ID, "move me")

	h.store.failOn("relationships.Create", errors.New("deadlock detected"))
	_, err := h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "child", ReplyIDs: []string{reply.ID}})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransaction(err))
	assert.Equal(t, []string{parent.ID}, h.replyTickets(reply.ID))

	count, err := h.tickets.Count(h.ctx(), TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// the rolled back number is handed out again
	h.store.failOn("relationships.Create", nil)
	child, err := h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "child", ReplyIDs: []string{reply.ID}})
	require.NoError(t, err)
	assert.Equal(t, parent.TicketNumber[:len(parent.TicketNumber)-4]+"0002", child.TicketNumber)
}

func TestSplit_DrawsAnotherNumberWhenTaken(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	parent := h.ticket(t, entity.ID, "Parent")
	reply := h.reply(t, parent.ID, "move me")

	numbers := &scriptedNumbers{numbers: []string{parent.TicketNumber, "ACM-202610-0002"}}
	h.tickets.numbers = numbers
	child, err := h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "child", ReplyIDs: []string{reply.ID}})
	require.NoError(t, err)
	assert.Equal(t, "ACM-202610-0002", child.TicketNumber)
	assert.Equal(t, 2, numbers.calls)
	assert.Equal(t, []string{child.ID}, h.replyTickets(reply.ID))
	assert.Equal(t, 1, h.tx.rollbacks)

	related, err := h.relationships.Related(h.ctx(), parent.ID)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, child.ID, related[0].OtherTicketID)
}

func TestSplit_LockReleaseFailureKeepsCommittedSplit(t *testing.T) {
	h := newHarnessWithLocker(t, failingReleaseLocker{Locker: lock.NewMemoryLocker(), err: lock.ErrNotHeld})
	entity := h.entity(t, "Acme Support", nil)
	parent := h.ticket(t, entity.ID, "Parent")
	reply := h.reply(t, parent.ID, "move me")
	h.publisher.reset()

	child, err := h.relationships.Split(h.ctx(), SplitInput{ParentID: parent.ID, Subject: "child", ReplyIDs: []string{reply.ID}})
	require.NoError(t, err)
	require.NotNil(t, child)
	assert.Equal(t, []string{child.ID}, h.replyTickets(reply.ID))
	assert.Equal(t, []events.EventType{events.EventTicketSplit, events.EventTicketCreated}, h.publisher.types())
}

func TestLink_OrderedTuplesAreUnique(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	a := h.ticket(t, entity.ID, "A")
	b := h.ticket(t, entity.ID, "B")

	rel, err := h.relationships.Link(h.ctx(), a.ID, b.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.RelationshipRelated, rel.Type)

	_, err = h.relationships.Link(h.ctx(), a.ID, b.ID, "")
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, "relationship_exists", apperrors.ReasonOf(err))

	reverse, err := h.relationships.Link(h.ctx(), b.ID, a.ID, "")
	require.NoError(t, err)
	assert.Equal(t, b.ID, reverse.ParentTicketID)

	_, err = h.relationships.MarkDuplicate(h.ctx(), a.ID, b.ID, "")
	require.NoError(t, err, "a different type on the same pair is allowed")

	assert.Equal(t, a.Status, h.stored(t, a.ID).Status, "linking leaves tickets untouched")
}

func TestRelationships_RejectSelfReference(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	a := h.ticket(t, entity.ID, "A")

	_, err := h.relationships.Link(h.ctx(), a.ID, a.ID, "")
	assert.Equal(t, "self_relationship", apperrors.ReasonOf(err))
	_, err = h.relationships.Merge(h.ctx(), a.ID, a.ID, "")
	assert.Equal(t, "self_relationship", apperrors.ReasonOf(err))
	_, err = h.relationships.MarkDuplicate(h.ctx(), a.ID, a.ID, "")
	assert.Equal(t, "self_relationship", apperrors.ReasonOf(err))

	_, err = h.relationships.Link(h.ctx(), a.ID, "1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMarkDuplicate_ClosesDuplicateWithPublicNote(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	original := h.ticket(t, entity.ID, "Login broken")
	duplicate := h.ticket(t, entity.ID, "Cannot log in")
	h.publisher.reset()

	rel, err := h.relationships.MarkDuplicate(h.ctx(), original.ID, duplicate.ID, "")
	require.NoError(t, err)
	assert.Equal(t, original.ID, rel.ParentTicketID)

	closed := h.stored(t, duplicate.ID)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, baseTime, *closed.ClosedAt)

	thread, err := h.replies.ListReplies(h.ctx(), duplicate.ID, false)
	require.NoError(t, err)
	require.Len(t, thread, 1)
	assert.Contains(t, thread[0].Content, original.TicketNumber)
	assert.Equal(t, domain.AuthorTypeSystem, thread[0].AuthorType)

	history, err := h.tickets.History(h.ctx(), duplicate.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ChangeTypeStatus, history[0].ChangeType)

	assert.Equal(t, []events.EventType{events.EventMarkedDuplicate, events.EventStatusChanged}, h.publisher.types())
}

func TestDeleteRelationship(t *testing.T) {
	h := newHarness(t)
	entity := h.entity(t, "Acme Support", nil)
	a := h.ticket(t, entity.ID, "A")
	b := h.ticket(t, entity.ID, "B")
	rel, err := h.relationships.Link(h.ctx(), a.ID, b.ID, "")
	require.NoError(t, err)

	require.NoError(t, h.relationships.DeleteRelationship(h.ctx(), rel.ID))
	err = h.relationships.DeleteRelationship(h.ctx(), rel.ID)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.relationships.Link(h.ctx(), a.ID, b.ID, "")
	assert.NoError(t, err)
}
