// Package storagetest is the behavior suite every Store backend must pass.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

// Factory returns an empty store. The suite closes it.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"ConversationRoundTrip", testConversationRoundTrip},
		{"MessagesKeepInsertionOrder", testMessagesKeepInsertionOrder},
		{"CreateTicketEscalatesAtomically", testCreateTicketEscalatesAtomically},
		{"CreateTicketRejectsDuplicateID", testCreateTicketRejectsDuplicateID},
		{"CreateTicketRequiresOpenConversation", testCreateTicketRequiresOpenConversation},
		{"ResolveTicketResolvesConversation", testResolveTicketResolvesConversation},
		{"ListTicketsOrderAndFilter", testListTicketsOrderAndFilter},
		{"AssignAndReprioritize", testAssignAndReprioritize},
		{"AssignResolvedTicketConflicts", testAssignResolvedTicketConflicts},
		{"AnalyticsEvents", testAnalyticsEvents},
		{"Articles", testArticles},
		{"NotFound", testNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func conversation(id string, at time.Time) domain.Conversation {
	return domain.Conversation{
		ID:            id,
		CustomerID:    "cust-001",
		CustomerName:  "Sarah Mitchell",
		CustomerEmail: "sarah@example.com",
		Status:        domain.ConversationOpen,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func message(id, conversationID string, role domain.Role, content string, at time.Time) domain.Message {
	return domain.Message{ID: id, ConversationID: conversationID, Role: role, Content: content, CreatedAt: at}
}

func ticket(n int, conversationID string, p domain.Priority, category string, at time.Time) domain.Ticket {
	return domain.Ticket{
		ID:               fmt.Sprintf("ticket-%d", n),
		TicketID:         fmt.Sprintf("TKT-%d", 1000+n),
		ConversationID:   conversationID,
		Customer:         "Sarah Mitchell",
		Category:         category,
		Priority:         p,
		EscalationReason: "Customer requested to speak with a human agent",
		Status:           domain.TicketOpen,
		CreatedAt:        at,
		UpdatedAt:        at,
	}
}

func testConversationRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	c := conversation("conv-1", base)
	require.NoError(t, s.CreateConversation(ctx, c))
	require.ErrorIs(t, s.CreateConversation(ctx, c), storage.ErrConflict)

	got, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, c.CustomerName, got.CustomerName)
	assert.Equal(t, c.CustomerEmail, got.CustomerEmail)
	assert.Equal(t, domain.ConversationOpen, got.Status)
	assert.True(t, got.CreatedAt.Equal(base))

	require.NoError(t, s.CreateConversation(ctx, conversation("conv-2", base.Add(time.Minute))))
	list, err := s.ListConversations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "conv-2", list[0].ID)

	list, err = s.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.UpdateConversationStatus(ctx, "conv-1", domain.ConversationResolved))
	got, err = s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationResolved, got.Status)
}

func testMessagesKeepInsertionOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))

	confidence := 0.8
	// Same timestamp on purpose: order must come from insertion.
	msgs := []domain.Message{
		message("m-3", "conv-1", domain.RoleCustomer, "where is my order", base),
		message("m-1", "conv-1", domain.RoleAI, "It is in transit.", base),
		message("m-2", "conv-1", domain.RoleCustomer, "thanks", base),
	}
	msgs[1].ConfidenceScore = &confidence
	for _, m := range msgs {
		require.NoError(t, s.AppendMessage(ctx, m))
	}
	require.ErrorIs(t, s.AppendMessage(ctx, msgs[0]), storage.ErrConflict)

	got, err := s.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"m-3", "m-1", "m-2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Nil(t, got[0].ConfidenceScore)
	require.NotNil(t, got[1].ConfidenceScore)
	assert.InDelta(t, 0.8, *got[1].ConfidenceScore, 1e-9)

	other, err := s.ListMessages(ctx, "conv-404")
	require.NoError(t, err)
	assert.Empty(t, other)

	require.ErrorIs(t, s.AppendMessage(ctx, message("m-9", "conv-404", domain.RoleCustomer, "hi", base)), storage.ErrNotFound)
}

func testCreateTicketEscalatesAtomically(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))

	tk := ticket(1, "conv-1", domain.PriorityHigh, "Returns", base)
	note := message("m-sys", "conv-1", domain.RoleSystem, "Conversation escalated: "+tk.EscalationReason, base)
	require.NoError(t, s.CreateTicket(ctx, tk, note))

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationEscalated, conv.Status)
	assert.Equal(t, "Returns", conv.Category)

	msgs, err := s.ListMessages(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleSystem, msgs[0].Role)

	got, err := s.GetTicket(ctx, "TKT-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketOpen, got.Status)
	assert.Equal(t, domain.PriorityHigh, got.Priority)

	byConv, err := s.TicketForConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "TKT-1001", byConv.TicketID)
}

func testCreateTicketRejectsDuplicateID(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-2", base)))

	first := ticket(1, "conv-1", domain.PriorityHigh, "General", base)
	require.NoError(t, s.CreateTicket(ctx, first, message("m-1", "conv-1", domain.RoleSystem, "x", base)))

	dup := ticket(1, "conv-2", domain.PriorityLow, "General", base)
	dup.ID = "ticket-other"
	err := s.CreateTicket(ctx, dup, message("m-2", "conv-2", domain.RoleSystem, "x", base))
	require.ErrorIs(t, err, storage.ErrConflict)

	// Nothing of the failed transaction is visible.
	conv, err := s.GetConversation(ctx, "conv-2")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationOpen, conv.Status)
	msgs, err := s.ListMessages(ctx, "conv-2")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func testCreateTicketRequiresOpenConversation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))
	require.NoError(t, s.UpdateConversationStatus(ctx, "conv-1", domain.ConversationResolved))

	err := s.CreateTicket(ctx, ticket(1, "conv-1", domain.PriorityHigh, "General", base),
		message("m-1", "conv-1", domain.RoleSystem, "x", base))
	require.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.GetTicket(ctx, "TKT-1001")
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = s.CreateTicket(ctx, ticket(2, "conv-404", domain.PriorityHigh, "General", base),
		message("m-2", "conv-404", domain.RoleSystem, "x", base))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testResolveTicketResolvesConversation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))
	require.NoError(t, s.CreateTicket(ctx, ticket(1, "conv-1", domain.PriorityMedium, "Shipping", base),
		message("m-1", "conv-1", domain.RoleSystem, "x", base)))

	got, err := s.UpdateTicketStatus(ctx, "TKT-1001", domain.TicketResolved)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketResolved, got.Status)

	conv, err := s.GetConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ConversationResolved, conv.Status)

	_, err = s.UpdateTicketStatus(ctx, "TKT-404", domain.TicketResolved)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testListTicketsOrderAndFilter(t *testing.T, s storage.Store) {
	ctx := context.Background()
	specs := []struct {
		priority domain.Priority
		category string
		offset   time.Duration
	}{
		{domain.PriorityLow, "General", 0},
		{domain.PriorityHigh, "Returns", 2 * time.Minute},
		{domain.PriorityMedium, "Shipping", time.Minute},
		{domain.PriorityHigh, "Billing", time.Minute},
	}
	for i, sp := range specs {
		convID := fmt.Sprintf("conv-%d", i)
		require.NoError(t, s.CreateConversation(ctx, conversation(convID, base)))
		require.NoError(t, s.CreateTicket(ctx, ticket(i, convID, sp.priority, sp.category, base.Add(sp.offset)),
			message(fmt.Sprintf("m-%d", i), convID, domain.RoleSystem, "x", base)))
	}

	all, err := s.ListTickets(ctx, storage.TicketFilter{})
	require.NoError(t, err)
	var order []string
	for _, tk := range all {
		order = append(order, tk.Category)
	}
	assert.Equal(t, []string{"Billing", "Returns", "Shipping", "General"}, order)

	high, err := s.ListTickets(ctx, storage.TicketFilter{Priority: domain.PriorityHigh})
	require.NoError(t, err)
	assert.Len(t, high, 2)

	shipping, err := s.ListTickets(ctx, storage.TicketFilter{Category: "Shipping", Status: domain.TicketOpen})
	require.NoError(t, err)
	require.Len(t, shipping, 1)
	assert.Equal(t, domain.PriorityMedium, shipping[0].Priority)

	none, err := s.ListTickets(ctx, storage.TicketFilter{Status: domain.TicketResolved})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testAssignAndReprioritize(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))
	require.NoError(t, s.CreateTicket(ctx, ticket(1, "conv-1", domain.PriorityLow, "General", base),
		message("m-1", "conv-1", domain.RoleSystem, "x", base)))

	got, err := s.AssignTicket(ctx, "TKT-1001", "Dana")
	require.NoError(t, err)
	assert.Equal(t, "Dana", got.AssignedAgent)
	assert.Equal(t, domain.TicketInProgress, got.Status)

	got, err = s.UpdateTicketPriority(ctx, "TKT-1001", domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, "Dana", got.AssignedAgent)

	_, err = s.AssignTicket(ctx, "TKT-404", "Dana")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testAssignResolvedTicketConflicts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateConversation(ctx, conversation("conv-1", base)))
	require.NoError(t, s.CreateTicket(ctx, ticket(1, "conv-1", domain.PriorityLow, "General", base),
		message("m-1", "conv-1", domain.RoleSystem, "x", base)))
	_, err := s.UpdateTicketStatus(ctx, "TKT-1001", domain.TicketResolved)
	require.NoError(t, err)

	_, err = s.AssignTicket(ctx, "TKT-1001", "Dana")
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := s.GetTicket(ctx, "TKT-1001")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketResolved, got.Status)
	assert.Empty(t, got.AssignedAgent)
}

func testAnalyticsEvents(t *testing.T, s storage.Store) {
	ctx := context.Background()
	events := []domain.AnalyticsEvent{
		{ID: "e-1", Type: domain.EventConversationStarted, ConversationID: "conv-1", CreatedAt: base.Add(-48 * time.Hour)},
		{ID: "e-2", Type: domain.EventMessageProcessed, ConversationID: "conv-1",
			Data: map[string]any{"escalated": true, "confidenceScore": 0.45}, CreatedAt: base},
		{ID: "e-3", Type: domain.EventMessageProcessed, ConversationID: "conv-2", CreatedAt: base.Add(time.Hour)},
		{ID: "e-4", Type: domain.EventTrainingTriggered, Data: map[string]any{"articlesCount": 7}, CreatedAt: base},
	}
	for _, e := range events {
		require.NoError(t, s.RecordAnalyticsEvent(ctx, e))
	}

	processed, err := s.ListAnalyticsEvents(ctx, storage.EventFilter{Type: domain.EventMessageProcessed})
	require.NoError(t, err)
	require.Len(t, processed, 2)
	assert.Equal(t, "e-2", processed[0].ID)
	assert.Equal(t, true, processed[0].Data["escalated"])
	assert.InDelta(t, 0.45, processed[0].Data["confidenceScore"], 1e-9)

	recent, err := s.ListAnalyticsEvents(ctx, storage.EventFilter{Since: base.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	conv1, err := s.ListAnalyticsEvents(ctx, storage.EventFilter{ConversationID: "conv-1"})
	require.NoError(t, err)
	assert.Len(t, conv1, 2)
}

func testArticles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	articles := []domain.Article{
		{ID: "art-1", Category: "Shipping", Title: "Shipping times", Content: "Standard shipping takes 5-7 days.", CreatedAt: base, UpdatedAt: base},
		{ID: "art-2", Category: "Returns", Title: "Return policy", Content: "Returns accepted within 30 days.", CreatedAt: base, UpdatedAt: base},
		{ID: "art-3", Category: "Shipping", Title: "Express delivery", Content: "Express takes 2 days.", CreatedAt: base, UpdatedAt: base},
	}
	for _, a := range articles {
		require.NoError(t, s.CreateArticle(ctx, a))
	}
	require.ErrorIs(t, s.CreateArticle(ctx, articles[0]), storage.ErrConflict)

	all, err := s.ListArticles(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "art-2", all[0].ID)

	shipping, err := s.ListArticles(ctx, "Shipping")
	require.NoError(t, err)
	require.Len(t, shipping, 2)
	assert.Equal(t, "Express delivery", shipping[0].Title)

	updated := articles[0]
	updated.Content = "Standard shipping takes 3-5 days."
	updated.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, s.UpdateArticle(ctx, updated))
	got, err := s.GetArticle(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, updated.Content, got.Content)
	assert.True(t, got.UpdatedAt.Equal(updated.UpdatedAt))

	require.NoError(t, s.DeleteArticle(ctx, "art-1"))
	require.ErrorIs(t, s.DeleteArticle(ctx, "art-1"), storage.ErrNotFound)
	require.ErrorIs(t, s.UpdateArticle(ctx, updated), storage.ErrNotFound)
}

func testNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetConversation(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetTicket(ctx, "TKT-0000")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.TicketForConversation(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetArticle(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateConversationStatus(ctx, "nope", domain.ConversationResolved), storage.ErrNotFound)
}
