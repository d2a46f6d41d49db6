// Package nudge reminds agents about escalation tickets that have been
// waiting too long.
package nudge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"supportbot/internal/digest"
	"supportbot/internal/domain"
	"supportbot/internal/storage"
)

// maxPerRun bounds how many reminders one run sends.
const maxPerRun = 10

type TicketSource interface {
	ListTickets(ctx context.Context, f storage.TicketFilter) ([]domain.Ticket, error)
}

type Reminder interface {
	TicketStale(ctx context.Context, t domain.Ticket, waited time.Duration) error
}

// Stale returns the open and in-progress tickets created at least after
// ago, longest waiting first.
func Stale(tickets []domain.Ticket, now time.Time, after time.Duration) []domain.Ticket {
	var out []domain.Ticket
	for _, t := range tickets {
		if t.Status == domain.TicketResolved || t.CreatedAt.IsZero() {
			continue
		}
		if now.Sub(t.CreatedAt) >= after {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Job sends one reminder per stale ticket. A failed reminder does not stop
// the others.
func Job(src TicketSource, r Reminder, after time.Duration, now func() time.Time, logger *zap.Logger) digest.Job {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context) error {
		tickets, err := src.ListTickets(ctx, storage.TicketFilter{})
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		at := now()
		stale := Stale(tickets, at, after)
		if len(stale) == 0 {
			logger.Debug("no stale tickets")
			return nil
		}
		if len(stale) > maxPerRun {
			logger.Info("stale tickets over limit, reminding oldest", zap.Int("stale", len(stale)), zap.Int("limit", maxPerRun))
			stale = stale[:maxPerRun]
		}

		var errs []error
		for _, t := range stale {
			waited := at.Sub(t.CreatedAt)
			if err := r.TicketStale(ctx, t, waited); err != nil {
				errs = append(errs, fmt.Errorf("remind %s: %w", t.TicketID, err))
				continue
			}
			logger.Info("stale ticket reminder sent",
				zap.String("ticket_id", t.TicketID),
				zap.String("agent", t.AssignedAgent),
				zap.Duration("waited", waited.Round(time.Minute)),
			)
		}
		return errors.Join(errs...)
	}
}
