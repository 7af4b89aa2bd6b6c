package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// Issuer sells tickets. A purchase reserves one seat through the ledger and
// stores the ticket in the same unit of work, so either both happen or
// neither does.
type Issuer struct {
	*base
	ledger *Ledger
	bulk   bulkLimits
}

// Purchase sells one ticket of req.EventID to req.UserID. Users buy for
// themselves; admins may buy for anyone. A price above the event's base
// price needs req.Override and an admin actor.
func (s *Issuer) Purchase(ctx context.Context, actorID string, req model.PurchaseRequest) (*model.Ticket, error) {
	tk, err := s.purchase(ctx, actorID, req, false)
	s.record(ctx, err)
	return tk, err
}

// record counts one purchase attempt by outcome.
func (s *Issuer) record(ctx context.Context, err error) {
	outcome := "ok"
	if err != nil {
		outcome = model.Code(err)
	}
	s.metrics.Purchase(ctx, outcome)
}

// purchase issues the ticket. onBehalf skips the buyer check for callers
// that authorized the whole batch already.
func (s *Issuer) purchase(ctx context.Context, actorID string, req model.PurchaseRequest, onBehalf bool) (*model.Ticket, error) {
	req.EventID = strings.TrimSpace(req.EventID)
	req.UserID = strings.TrimSpace(req.UserID)
	req.TicketType = strings.TrimSpace(req.TicketType)
	if req.TicketType == "" {
		req.TicketType = model.DefaultTicketType
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var (
		tk  *model.Ticket
		res *Reservation
	)
	err := s.withEvent(ctx, "purchase", req.EventID, func(ctx context.Context, tx repository.Tx) error {
		res = nil
		ev, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		if !onBehalf {
			if _, err := requireSelfOrAdmin(ctx, tx, actorID, req.UserID); err != nil {
				return err
			}
		}
		if _, err := tx.GetUser(ctx, req.UserID); err != nil {
			return notFound(err, "user", req.UserID)
		}

		now := s.clock.Now()
		switch {
		case ev.Status == model.EventSoldOut:
			return model.Errorf(model.ErrCapacityExceeded, "event %s is sold out", ev.ID)
		case ev.Status != model.EventPublished:
			return model.Errorf(model.ErrEventNotPublished, "event %s is %s", ev.ID, ev.Status)
		case ev.HasEnded(now):
			return model.Errorf(model.ErrEventNotPublished, "event %s has ended", ev.ID)
		}

		price := ev.BasePrice
		if req.Price != nil {
			price = *req.Price
		}
		override := false
		if price > ev.BasePrice {
			if !req.Override {
				return model.ErrPriceExceedsBase
			}
			if _, err := requireAdmin(ctx, tx, actorID); err != nil {
				return err
			}
			override = true
		}

		res, err = s.ledger.reserveIn(ctx, tx, ev, 1)
		if err != nil {
			return err
		}
		tk = &model.Ticket{
			ID:            uuid.New().String(),
			EventID:       ev.ID,
			UserID:        req.UserID,
			TicketType:    req.TicketType,
			PricePaid:     price,
			PriceOverride: override,
			Status:        model.TicketActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.InsertTicket(ctx, tk)
	})
	if err != nil {
		// The unit of work was rolled back, which took the reserved seat with it.
		return nil, notFound(err, "event", req.EventID)
	}
	s.ledger.commit(res)
	s.metrics.TicketTransition(ctx, string(model.TicketActive))
	s.log.Debug("ticket issued",
		zap.String("ticket_id", tk.ID),
		zap.String("event_id", tk.EventID),
		zap.String("user_id", tk.UserID),
	)
	return tk, nil
}

// PurchaseBulk buys one ticket per user at the base price. Only admins and
// the event's organizer may buy in bulk. Items run concurrently and
// independently; the outcomes keep the order of userIDs.
func (s *Issuer) PurchaseBulk(ctx context.Context, actorID, eventID string, userIDs []string, ticketType string) ([]model.PurchaseOutcome, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, model.Invalid("event id is required")
	}
	if err := s.bulk.check(len(userIDs)); err != nil {
		return nil, err
	}
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return notFound(err, "event", eventID)
		}
		_, err = requireEventManager(ctx, tx, actorID, ev)
		return err
	})
	if err != nil {
		return nil, err
	}

	outcomes := make([]model.PurchaseOutcome, len(userIDs))
	var g errgroup.Group
	g.SetLimit(s.bulk.concurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			tk, err := s.purchase(ctx, actorID, model.PurchaseRequest{
				EventID:    eventID,
				UserID:     userID,
				TicketType: ticketType,
			}, true)
			s.record(ctx, err)
			outcomes[i] = model.PurchaseOutcome{UserID: userID, Ticket: tk, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, o := range outcomes {
		if o.Err == nil {
			succeeded++
		}
	}
	s.log.Info("bulk purchase finished",
		zap.String("event_id", eventID),
		zap.Int("requested", len(userIDs)),
		zap.Int("succeeded", succeeded),
	)
	return outcomes, nil
}
