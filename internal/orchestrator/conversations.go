package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"supportbot/internal/actions"
	"supportbot/internal/domain"
	"supportbot/internal/sentiment"
	"supportbot/internal/storage"
	"supportbot/internal/summary"
)

// Detail is a conversation with its transcript and, once escalated, its
// ticket.
type Detail struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
	Ticket       *domain.Ticket      `json:"ticket,omitempty"`
}

func (o *Orchestrator) Conversations(ctx context.Context, limit int) ([]domain.Conversation, error) {
	convs, err := o.store.ListConversations(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return convs, nil
}

// Conversation returns false when no conversation has the id.
func (o *Orchestrator) Conversation(ctx context.Context, id string) (Detail, bool, error) {
	conv, err := o.store.GetConversation(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return Detail{}, false, nil
	}
	if err != nil {
		return Detail{}, false, fmt.Errorf("load conversation: %w", err)
	}
	msgs, err := o.store.ListMessages(ctx, id)
	if err != nil {
		return Detail{}, false, fmt.Errorf("load messages: %w", err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	d := Detail{Conversation: conv, Messages: msgs}
	t, err := o.store.TicketForConversation(ctx, id)
	switch {
	case err == nil:
		d.Ticket = &t
	case !errors.Is(err, storage.ErrNotFound):
		return Detail{}, false, fmt.Errorf("load ticket: %w", err)
	}
	return d, true, nil
}

// Escalate hands an open conversation to a human with the agent's reason.
func (o *Orchestrator) Escalate(ctx context.Context, id, reason string) (domain.Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Ticket{}, fmt.Errorf("%w: reason is required", ErrValidation)
	}
	unlock := o.locks.Lock(id)
	defer unlock()

	conv, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv.Status != domain.ConversationOpen {
		return domain.Ticket{}, fmt.Errorf("%w: conversation %s is %s", ErrInvalidTransition, id, conv.Status)
	}
	return o.openTicket(ctx, conv, reason, domain.EscalationTrigger{
		Type:     domain.TriggerCustomerRequest,
		Reason:   reason,
		Priority: domain.PriorityHigh,
	})
}

// Resolve closes the conversation. Resolving twice is a no-op. An escalated
// conversation resolves through its ticket.
func (o *Orchestrator) Resolve(ctx context.Context, id string) (domain.Conversation, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	conv, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("load conversation %s: %w", id, err)
	}
	if conv.Status == domain.ConversationResolved {
		return conv, nil
	}

	var resolvedTicket string
	if conv.Status == domain.ConversationEscalated {
		t, err := o.store.TicketForConversation(ctx, id)
		switch {
		case err == nil && t.Status != domain.TicketResolved:
			if _, err := o.store.UpdateTicketStatus(ctx, t.TicketID, domain.TicketResolved); err != nil {
				return domain.Conversation{}, fmt.Errorf("resolve ticket %s: %w", t.TicketID, err)
			}
			resolvedTicket = t.TicketID
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return domain.Conversation{}, fmt.Errorf("load ticket: %w", err)
		}
	}
	if resolvedTicket == "" {
		if err := o.store.UpdateConversationStatus(ctx, id, domain.ConversationResolved); err != nil {
			return domain.Conversation{}, fmt.Errorf("resolve conversation %s: %w", id, err)
		}
	} else if err := o.events.Record(ctx, domain.EventTicketResolved, id, map[string]any{"ticketId": resolvedTicket}); err != nil {
		return domain.Conversation{}, err
	}

	if err := o.events.Record(ctx, domain.EventConversationResolved, id, nil); err != nil {
		return domain.Conversation{}, err
	}
	conv, err = o.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("reload conversation %s: %w", id, err)
	}
	o.logger.Info("conversation resolved", zap.String("conversation_id", id))
	return conv, nil
}

// EvaluateAction checks one requested quick action against the customer's
// latest order and the mood of their last message.
func (o *Orchestrator) EvaluateAction(ctx context.Context, conversationID, actionType string) (domain.QuickAction, error) {
	t, ok := domain.ParseActionType(actionType)
	if !ok {
		return domain.QuickAction{}, fmt.Errorf("%w: %w: %q", ErrValidation, actions.ErrUnknownAction, actionType)
	}
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.QuickAction{}, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	msgs, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return domain.QuickAction{}, fmt.Errorf("load messages: %w", err)
	}

	var in actions.BuildInput
	in.Sentiment = sentiment.Heuristic(lastCustomerMessage(msgs)).Level
	if o.customers != nil {
		if order, ok := o.customers.Context(conv).LatestOrder(); ok {
			in.Order = &order
		}
	}
	action, err := actions.Build(t, in)
	if err != nil {
		return domain.QuickAction{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := o.events.Record(ctx, domain.EventQuickActionRequested, conversationID, map[string]any{
		"actionType":   string(t),
		"eligible":     action.Eligible,
		"autoApproved": action.AutoApproved,
	}); err != nil {
		return domain.QuickAction{}, err
	}
	return action, nil
}

func lastCustomerMessage(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleCustomer {
			return msgs[i].Content
		}
	}
	return ""
}

// Summarize condenses the transcript with model, or the active model when
// model is empty. It returns false for an unknown conversation.
func (o *Orchestrator) Summarize(ctx context.Context, id, model string) (summary.Summary, bool, error) {
	client, err := o.client(model)
	if err != nil {
		return summary.Summary{}, false, err
	}
	if _, err := o.store.GetConversation(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return summary.Summary{}, false, nil
		}
		return summary.Summary{}, false, fmt.Errorf("load conversation: %w", err)
	}
	msgs, err := o.store.ListMessages(ctx, id)
	if err != nil {
		return summary.Summary{}, false, fmt.Errorf("load messages: %w", err)
	}
	return o.summarizer.Summarize(ctx, client, msgs), true, nil
}
