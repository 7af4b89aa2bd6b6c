package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// EventService drives the event lifecycle.
type EventService struct {
	*base
	ledger *Ledger
	guard  *Guard
}

// Create stores a draft event. Only organizers and admins may create events.
func (s *EventService) Create(ctx context.Context, actorID string, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if err := validateEventRequest(req); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	ev := &model.Event{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Description:  req.Description,
		VenueID:      req.VenueID,
		StartsAt:     req.StartsAt.UTC(),
		EndsAt:       req.EndsAt.UTC(),
		BasePrice:    req.BasePrice,
		MaxAttendees: req.MaxAttendees,
		Status:       model.EventDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.update(ctx, "create event", func(ctx context.Context, tx repository.Tx) error {
		u, err := actor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if u.Role != model.RoleOrganizer && !u.IsAdmin() {
			return model.Errorf(model.ErrNotAuthorized, "user %s may not create events", u.ID)
		}
		ev.OrganizerID = u.ID

		// Held until commit so the venue cannot be retired under the new event.
		venue, err := tx.LockVenue(ctx, req.VenueID)
		if err != nil {
			return notFound(err, "venue", req.VenueID)
		}
		if venue.Status != model.VenueActive {
			return model.Invalid("venue %s is not active", venue.ID)
		}
		if ev.MaxAttendees > venue.Capacity {
			return model.Invalid("max_attendees %d exceeds venue capacity %d", ev.MaxAttendees, venue.Capacity)
		}
		clash, err := s.guard.conflictIn(ctx, tx, venue.ID, ev.StartsAt, ev.EndsAt, "")
		if err != nil {
			return err
		}
		if clash != nil {
			return model.Errorf(model.ErrSchedulingConflict, "venue %s is booked by event %s", venue.ID, clash.ID)
		}
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("event created", zap.String("event_id", ev.ID), zap.String("venue_id", ev.VenueID))
	return ev, nil
}

func validateEventRequest(req model.CreateEventRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	if !req.EndsAt.After(req.StartsAt) {
		return model.Invalid("end_datetime must be after start_datetime")
	}
	return nil
}

// Get returns the event, completing it first if its end time has passed.
func (s *EventService) Get(ctx context.Context, id string) (*model.Event, error) {
	var ev *model.Event
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	if !ev.Status.OnSale() || !ev.HasEnded(s.clock.Now()) {
		return ev, nil
	}

	completed, err := s.complete(ctx, id)
	if errors.Is(err, model.ErrInvalidTransition) {
		// Someone else moved it on in the meantime; report what is stored now.
		return s.read(ctx, id)
	}
	return completed, err
}

func (s *EventService) read(ctx context.Context, id string) (*model.Event, error) {
	var ev *model.Event
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, id)
		return err
	})
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return ev, nil
}

// Publish moves a draft event on sale after re-validating it against its
// venue and the venue's schedule.
func (s *EventService) Publish(ctx context.Context, actorID, id string) (*model.Event, error) {
	var ev *model.Event
	err := s.withEvent(ctx, "publish event", id, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if ev.Status != model.EventDraft {
			return model.Errorf(model.ErrInvalidTransition, "event %s is %s, only drafts can be published", ev.ID, ev.Status)
		}
		if _, err := requireEventManager(ctx, tx, actorID, ev); err != nil {
			return err
		}

		venue, err := tx.LockVenue(ctx, ev.VenueID)
		if err != nil {
			return notFound(err, "venue", ev.VenueID)
		}
		now := s.clock.Now()
		if err := validatePublishable(ev, venue, now); err != nil {
			return err
		}
		clash, err := s.guard.conflictIn(ctx, tx, venue.ID, ev.StartsAt, ev.EndsAt, ev.ID)
		if err != nil {
			return err
		}
		if clash != nil {
			return model.Errorf(model.ErrSchedulingConflict,
				"event %s overlaps event %s at venue %s", ev.ID, clash.ID, venue.ID)
		}

		if err := ev.TransitionTo(model.EventPublished, now); err != nil {
			return err
		}
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	s.metrics.EventTransition(ctx, string(ev.Status))
	s.log.Info("event published", zap.String("event_id", ev.ID), zap.String("venue_id", ev.VenueID))
	return ev, nil
}

func validatePublishable(ev *model.Event, venue *model.Venue, now time.Time) error {
	switch {
	case venue.Status != model.VenueActive:
		return model.Invalid("venue %s is not active", venue.ID)
	case ev.OrganizerID == "":
		return model.Invalid("event %s has no organizer", ev.ID)
	case !ev.StartsAt.After(now):
		return model.Invalid("event %s must start in the future", ev.ID)
	case !ev.EndsAt.After(ev.StartsAt):
		return model.Invalid("event %s ends before it starts", ev.ID)
	case ev.BasePrice < 0:
		return model.Invalid("event %s has a negative base price", ev.ID)
	case ev.MaxAttendees <= 0:
		return model.Invalid("event %s must admit at least one attendee", ev.ID)
	case ev.MaxAttendees > venue.Capacity:
		return model.Invalid("max_attendees %d exceeds venue capacity %d", ev.MaxAttendees, venue.Capacity)
	}
	return nil
}

// Cancel cancels the event and, in the same unit of work, every ticket still
// holding a seat. With refund set those tickets end up refunded instead.
func (s *EventService) Cancel(ctx context.Context, actorID, id string, refund bool) (*model.CancelResult, error) {
	var result *model.CancelResult
	err := s.withEvent(ctx, "cancel event", id, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireEventManager(ctx, tx, actorID, ev); err != nil {
			return err
		}
		now := s.clock.Now()
		if !ev.Status.CanTransitionTo(model.EventCancelled) {
			return model.Errorf(model.ErrInvalidTransition, "event %s is already %s", ev.ID, ev.Status)
		}

		target := model.TicketCancelled
		if refund {
			target = model.TicketRefunded
		}
		tickets, err := tx.ListEventTickets(ctx, ev.ID)
		if err != nil {
			return err
		}
		var affected []*model.Ticket
		for i := range tickets {
			tk := &tickets[i]
			if !tk.Status.HoldsCapacity() {
				continue
			}
			if err := tk.Cascade(target, now); err != nil {
				return err
			}
			affected = append(affected, tk)
		}
		if _, err := s.ledger.releaseTicketsIn(ctx, tx, ev, false, affected...); err != nil {
			return err
		}
		if err := ev.TransitionTo(model.EventCancelled, now); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		result = &model.CancelResult{Event: ev, AffectedTickets: len(affected)}
		return nil
	})
	if err != nil {
		return nil, notFound(err, "event", id)
	}

	s.metrics.EventTransition(ctx, string(model.EventCancelled))
	s.metrics.Cascade(ctx, result.AffectedTickets, refund)
	s.log.Info("event cancelled",
		zap.String("event_id", id),
		zap.Int("affected_tickets", result.AffectedTickets),
		zap.Bool("refunded", refund),
	)
	return result, nil
}

// Complete marks an on-sale event whose end time has passed as completed.
func (s *EventService) Complete(ctx context.Context, id string) (*model.Event, error) {
	return s.complete(ctx, id)
}

func (s *EventService) complete(ctx context.Context, id string) (*model.Event, error) {
	var ev *model.Event
	err := s.withEvent(ctx, "complete event", id, func(ctx context.Context, tx repository.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if !ev.HasEnded(now) && ev.Status.CanTransitionTo(model.EventCompleted) {
			return model.Errorf(model.ErrInvalidTransition, "event %s has not ended yet", ev.ID)
		}
		if err := ev.TransitionTo(model.EventCompleted, now); err != nil {
			return err
		}
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	s.metrics.EventTransition(ctx, string(model.EventCompleted))
	s.log.Info("event completed", zap.String("event_id", id))
	return ev, nil
}

// SweepCompleted completes every on-sale event whose end time has passed and
// returns how many were completed. Events moved on concurrently are skipped.
func (s *EventService) SweepCompleted(ctx context.Context) (int, error) {
	var due []model.Event
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		due, err = tx.ListEventsEndedBefore(ctx, s.clock.Now())
		return err
	})
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, ev := range due {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		_, err := s.complete(ctx, ev.ID)
		switch {
		case err == nil:
			completed++
		case errors.Is(err, model.ErrInvalidTransition), errors.Is(err, model.ErrNotFound):
		default:
			return completed, err
		}
	}
	if completed > 0 {
		s.log.Info("completion sweep finished", zap.Int("completed", completed))
	}
	return completed, nil
}

// Delete removes a draft or cancelled event that no ticket references.
func (s *EventService) Delete(ctx context.Context, actorID, id string) error {
	err := s.withEvent(ctx, "delete event", id, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, id)
		if err != nil {
			return err
		}
		if _, err := requireEventManager(ctx, tx, actorID, ev); err != nil {
			return err
		}
		if ev.Status != model.EventDraft && ev.Status != model.EventCancelled {
			return model.Errorf(model.ErrInvalidTransition, "event %s is %s and cannot be deleted", ev.ID, ev.Status)
		}
		tickets, err := tx.ListEventTickets(ctx, ev.ID)
		if err != nil {
			return err
		}
		if len(tickets) > 0 {
			return model.Errorf(model.ErrConflict, "event %s is referenced by %d tickets", ev.ID, len(tickets))
		}
		return tx.DeleteEvent(ctx, ev.ID)
	})
	if err != nil {
		return notFound(err, "event", id)
	}
	s.log.Info("event deleted", zap.String("event_id", id))
	return nil
}

// ListTickets returns the event's tickets in purchase order.
func (s *EventService) ListTickets(ctx context.Context, id string) ([]model.Ticket, error) {
	var tickets []model.Ticket
	err := s.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, id); err != nil {
			return notFound(err, "event", id)
		}
		var err error
		tickets, err = tx.ListEventTickets(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return tickets, nil
}
