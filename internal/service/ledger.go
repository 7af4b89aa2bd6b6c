package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// Ledger is the single authority over an event's attendee count. All
// increments and decrements go through it, inside the event's unit of work.
type Ledger struct {
	*base
}

type reservationState int

const (
	reservationPending reservationState = iota
	reservationCommitted
	reservationReleased
)

// Reservation is a claim on a number of seats of one event.
type Reservation struct {
	ID      string
	EventID string
	Count   int

	mu    sync.Mutex
	state reservationState
}

// Committed reports whether the seats are permanently held.
func (r *Reservation) Committed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == reservationCommitted
}

// Reserve claims count seats for eventID in its own unit of work and returns
// a committed reservation.
func (l *Ledger) Reserve(ctx context.Context, eventID string, count int) (*Reservation, error) {
	var res *Reservation
	err := l.withEvent(ctx, "reserve", eventID, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		r, err := l.reserveIn(ctx, tx, ev, count)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, notFound(err, "event", eventID)
	}
	l.commit(res)
	return res, nil
}

// Release returns the seats of a committed reservation. Releasing a nil,
// pending or already released reservation is a no-op.
func (l *Ledger) Release(ctx context.Context, r *Reservation) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != reservationCommitted {
		return nil
	}
	err := l.withEvent(ctx, "release", r.EventID, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, r.EventID)
		if err != nil {
			return err
		}
		return l.decrement(ctx, tx, ev, r.Count, true)
	})
	if err != nil {
		return notFound(err, "event", r.EventID)
	}
	r.state = reservationReleased
	return nil
}

// CommittedCount returns the event's current attendee count.
func (l *Ledger) CommittedCount(ctx context.Context, eventID string) (int, error) {
	var count int
	err := l.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		count = ev.CurrentAttendeeCount
		return nil
	})
	return count, notFound(err, "event", eventID)
}

// reserveIn claims count seats of ev inside tx, which must hold the event lock.
// The returned reservation stays pending until commit is called after the
// unit of work succeeds.
func (l *Ledger) reserveIn(ctx context.Context, tx repository.Tx, ev *model.Event, count int) (*Reservation, error) {
	if count <= 0 {
		return nil, model.Invalid("reservation count must be positive, got %d", count)
	}
	if !ev.Status.OnSale() {
		return nil, model.Errorf(model.ErrEventNotPublished, "event %s is %s", ev.ID, ev.Status)
	}
	if ev.Remaining() < count {
		return nil, model.Errorf(model.ErrCapacityExceeded,
			"event %s has %d of %d seats left, %d requested", ev.ID, ev.Remaining(), ev.MaxAttendees, count)
	}

	now := l.clock.Now()
	ev.CurrentAttendeeCount += count
	ev.UpdatedAt = now
	ev.SyncCapacityStatus(now)
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return nil, err
	}
	if ev.Status == model.EventSoldOut {
		l.metrics.EventTransition(ctx, string(model.EventSoldOut))
		l.log.Info("event sold out", zap.String("event_id", ev.ID), zap.Int("max_attendees", ev.MaxAttendees))
	}
	return &Reservation{ID: uuid.New().String(), EventID: ev.ID, Count: count}, nil
}

func (l *Ledger) commit(r *Reservation) {
	r.mu.Lock()
	r.state = reservationCommitted
	r.mu.Unlock()
}

// releaseTicketsIn gives back the seat of every ticket that still holds one
// and marks it released, so a ticket's seat returns to the pool at most once.
// Tickets are persisted whether or not they held a seat. With resync unset
// the event only has its count lowered; the caller moves it on and saves it.
func (l *Ledger) releaseTicketsIn(ctx context.Context, tx repository.Tx, ev *model.Event, resync bool, tickets ...*model.Ticket) (int, error) {
	released := 0
	for _, tk := range tickets {
		if !tk.CapacityReleased {
			tk.CapacityReleased = true
			released++
		}
		if err := tx.UpdateTicket(ctx, tk); err != nil {
			return 0, err
		}
	}
	if released == 0 {
		return 0, nil
	}
	if err := l.decrement(ctx, tx, ev, released, resync); err != nil {
		return 0, err
	}
	l.metrics.Released(ctx, released)
	return released, nil
}

// decrement lowers the event's count. With resync it also flips sold_out
// back to published when seats free up and persists the event.
func (l *Ledger) decrement(ctx context.Context, tx repository.Tx, ev *model.Event, count int, resync bool) error {
	if count > ev.CurrentAttendeeCount {
		l.log.Error("attendee count underflow",
			zap.String("event_id", ev.ID),
			zap.Int("count", ev.CurrentAttendeeCount),
			zap.Int("release", count),
		)
		return model.Errorf(model.ErrInvalidTransition,
			"event %s holds %d seats, cannot release %d", ev.ID, ev.CurrentAttendeeCount, count)
	}
	now := l.clock.Now()
	wasSoldOut := ev.Status == model.EventSoldOut
	ev.CurrentAttendeeCount -= count
	ev.UpdatedAt = now
	if !resync {
		return nil
	}
	ev.SyncCapacityStatus(now)
	if err := tx.UpdateEvent(ctx, ev); err != nil {
		return err
	}
	if wasSoldOut && ev.Status == model.EventPublished {
		l.metrics.EventTransition(ctx, string(model.EventPublished))
	}
	return nil
}
