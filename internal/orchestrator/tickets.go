package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

// TicketView is a ticket as shown in the agent queue.
type TicketView struct {
	domain.Ticket
	WaitTime string `json:"waitTime"`
}

type EscalationStats struct {
	Open           int     `json:"open"`
	InProgress     int     `json:"inProgress"`
	Resolved       int     `json:"resolved"`
	AvgWaitTime    string  `json:"avgWaitTime"`
	AvgWaitMinutes float64 `json:"avgWaitMinutes"`
}

// WaitTime renders how long a ticket has been waiting.
func WaitTime(created, now time.Time) string {
	wait := now.Sub(created)
	switch {
	case wait < 15*time.Minute:
		return "Just now"
	case wait < time.Hour:
		return fmt.Sprintf("%d min", int(wait.Minutes()))
	default:
		return fmt.Sprintf("%d hr", int(wait.Hours()))
	}
}

func (o *Orchestrator) Tickets(ctx context.Context, f storage.TicketFilter) ([]TicketView, error) {
	tickets, err := o.store.ListTickets(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	now := o.now()
	out := make([]TicketView, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, TicketView{Ticket: t, WaitTime: WaitTime(t.CreatedAt, now)})
	}
	return out, nil
}

// Ticket returns false when no ticket has the id.
func (o *Orchestrator) Ticket(ctx context.Context, ticketID string) (domain.Ticket, bool, error) {
	t, err := o.store.GetTicket(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Ticket{}, false, nil
	}
	if err != nil {
		return domain.Ticket{}, false, fmt.Errorf("load ticket: %w", err)
	}
	return t, true, nil
}

func (o *Orchestrator) AssignTicket(ctx context.Context, ticketID, agent string) (domain.Ticket, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return domain.Ticket{}, fmt.Errorf("%w: agent is required", ErrValidation)
	}
	t, err := o.store.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	unlock := o.locks.Lock(t.ConversationID)
	defer unlock()

	// The store refuses resolved tickets inside its transaction.
	t, err = o.store.AssignTicket(ctx, ticketID, agent)
	if errors.Is(err, storage.ErrConflict) {
		return domain.Ticket{}, fmt.Errorf("%w: ticket %s is resolved", ErrInvalidTransition, ticketID)
	}
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("assign ticket %s: %w", ticketID, err)
	}
	if err := o.events.Record(ctx, domain.EventTicketAssigned, t.ConversationID, map[string]any{
		"ticketId": t.TicketID,
		"agent":    agent,
	}); err != nil {
		return domain.Ticket{}, err
	}
	o.logger.Info("ticket assigned", zap.String("ticket_id", t.TicketID), zap.String("agent", agent))
	o.notify(ctx, t, Notifier.TicketAssigned)
	return t, nil
}

// ResolveTicket resolves the ticket together with its conversation.
// Resolving a resolved ticket returns it unchanged.
func (o *Orchestrator) ResolveTicket(ctx context.Context, ticketID string) (domain.Ticket, error) {
	t, err := o.store.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("load ticket %s: %w", ticketID, err)
	}
	if t.Status == domain.TicketResolved {
		return t, nil
	}
	unlock := o.locks.Lock(t.ConversationID)
	defer unlock()

	t, err = o.store.UpdateTicketStatus(ctx, ticketID, domain.TicketResolved)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("resolve ticket %s: %w", ticketID, err)
	}
	if err := o.events.Record(ctx, domain.EventTicketResolved, t.ConversationID, map[string]any{
		"ticketId": t.TicketID,
	}); err != nil {
		return domain.Ticket{}, err
	}
	o.logger.Info("ticket resolved", zap.String("ticket_id", t.TicketID))
	return t, nil
}

func (o *Orchestrator) SetTicketPriority(ctx context.Context, ticketID, priority string) (domain.Ticket, error) {
	p, ok := domain.ParsePriority(strings.ToLower(strings.TrimSpace(priority)))
	if !ok {
		return domain.Ticket{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}
	t, err := o.store.UpdateTicketPriority(ctx, ticketID, p)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("update ticket %s: %w", ticketID, err)
	}
	return t, nil
}

// EscalationStats counts tickets by status. The average wait covers the
// tickets still waiting on an agent.
func (o *Orchestrator) EscalationStats(ctx context.Context) (EscalationStats, error) {
	tickets, err := o.store.ListTickets(ctx, storage.TicketFilter{})
	if err != nil {
		return EscalationStats{}, fmt.Errorf("list tickets: %w", err)
	}
	now := o.now()
	var s EscalationStats
	var waiting float64
	for _, t := range tickets {
		switch t.Status {
		case domain.TicketOpen:
			s.Open++
		case domain.TicketInProgress:
			s.InProgress++
		case domain.TicketResolved:
			s.Resolved++
			continue
		}
		waiting += now.Sub(t.CreatedAt).Minutes()
	}
	if n := s.Open + s.InProgress; n > 0 {
		s.AvgWaitMinutes = math.Round(waiting / float64(n))
	}
	s.AvgWaitTime = fmt.Sprintf("%d min", int(s.AvgWaitMinutes))
	return s, nil
}
