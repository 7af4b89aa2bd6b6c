package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// TicketService drives the ticket lifecycle. Every change runs under the lock
// of the ticket's event, so it serializes with purchases and cancellation
// cascades of that event.
type TicketService struct {
	*base
	ledger *Ledger
	bulk   bulkLimits
}

// Get returns a ticket.
func (s *TicketService) Get(ctx context.Context, id string) (*model.Ticket, error) {
	var tk *model.Ticket
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		tk, err = tx.GetTicket(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "ticket", id)
	}
	return tk, nil
}

// CheckIn admits the ticket holder. A ticket checks in once, and only
// while its event is on sale and has not ended. The holder, an admin or the
// event's organizer may check it in.
func (s *TicketService) CheckIn(ctx context.Context, actorID, id string) (*model.Ticket, error) {
	return s.change(ctx, "check in ticket", id, func(ctx context.Context, tx repository.Tx, ev *model.Event, tk *model.Ticket) error {
		if _, err := requireTicketHandler(ctx, tx, actorID, ev, tk); err != nil {
			return err
		}
		now := s.clock.Now()
		if tk.Status != model.TicketActive {
			return tk.TransitionTo(model.TicketCheckedIn, now)
		}
		if !ev.Status.OnSale() {
			return model.Errorf(model.ErrInvalidTransition, "event %s is %s", ev.ID, ev.Status)
		}
		if ev.HasEnded(now) {
			return model.Errorf(model.ErrEventAlreadyOccurred, "event %s ended at %s", ev.ID, ev.EndsAt.Format(time.RFC3339))
		}
		if err := tk.TransitionTo(model.TicketCheckedIn, now); err != nil {
			return err
		}
		return tx.UpdateTicket(ctx, tk)
	})
}

// CheckInBulk checks in each ticket independently. Outcomes keep the order
// of ids.
func (s *TicketService) CheckInBulk(ctx context.Context, actorID string, ids []string) ([]model.CheckInOutcome, error) {
	if err := s.bulk.check(len(ids)); err != nil {
		return nil, err
	}
	outcomes := make([]model.CheckInOutcome, len(ids))
	var g errgroup.Group
	g.SetLimit(s.bulk.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			tk, err := s.CheckIn(ctx, actorID, id)
			outcomes[i] = model.CheckInOutcome{TicketID: id, Ticket: tk, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// Cancel cancels an active ticket before its event starts and gives its seat
// back. Only the ticket holder or an admin may cancel.
func (s *TicketService) Cancel(ctx context.Context, actorID, id string) (*model.Ticket, error) {
	return s.change(ctx, "cancel ticket", id, func(ctx context.Context, tx repository.Tx, ev *model.Event, tk *model.Ticket) error {
		if _, err := requireSelfOrAdmin(ctx, tx, actorID, tk.UserID); err != nil {
			return err
		}

		now := s.clock.Now()
		if !tk.Status.CanTransitionTo(model.TicketCancelled) {
			return tk.TransitionTo(model.TicketCancelled, now)
		}
		if ev.HasStarted(now) {
			return model.Errorf(model.ErrEventAlreadyOccurred, "event %s started at %s", ev.ID, ev.StartsAt.Format(time.RFC3339))
		}
		if err := tk.TransitionTo(model.TicketCancelled, now); err != nil {
			return err
		}
		_, err := s.ledger.releaseTicketsIn(ctx, tx, ev, true, tk)
		return err
	})
}

// Refund refunds an active or checked in ticket and gives its seat back if
// it still holds one. Admin only.
func (s *TicketService) Refund(ctx context.Context, actorID, id string) (*model.Ticket, error) {
	return s.change(ctx, "refund ticket", id, func(ctx context.Context, tx repository.Tx, ev *model.Event, tk *model.Ticket) error {
		if _, err := requireAdmin(ctx, tx, actorID); err != nil {
			return err
		}
		if err := tk.TransitionTo(model.TicketRefunded, s.clock.Now()); err != nil {
			return err
		}
		_, err := s.ledger.releaseTicketsIn(ctx, tx, ev, true, tk)
		return err
	})
}

type ticketChange func(ctx context.Context, tx repository.Tx, ev *model.Event, tk *model.Ticket) error

// change locates the ticket's event, then re-reads both under the event lock
// and applies fn. fn persists the ticket itself.
func (s *TicketService) change(ctx context.Context, op, id string, fn ticketChange) (*model.Ticket, error) {
	eventID, err := s.eventOfTicket(ctx, id)
	if err != nil {
		return nil, err
	}

	var tk *model.Ticket
	err = s.withEvent(ctx, op, eventID, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		tk, err = tx.GetTicket(ctx, id)
		if err != nil {
			return notFound(err, "ticket", id)
		}
		return fn(ctx, tx, ev, tk)
	})
	if err != nil {
		return nil, notFound(err, "event", eventID)
	}

	s.metrics.TicketTransition(ctx, string(tk.Status))
	s.log.Info("ticket updated",
		zap.String("op", op),
		zap.String("ticket_id", tk.ID),
		zap.String("status", string(tk.Status)),
	)
	return tk, nil
}
