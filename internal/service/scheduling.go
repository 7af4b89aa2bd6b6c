package service

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// blockingStatuses are the event states that occupy a venue.
var blockingStatuses = []model.EventStatus{model.EventPublished, model.EventSoldOut}

// Guard keeps live events at one venue from overlapping in time.
type Guard struct {
	*base
}

// HasConflict reports whether a published or sold out event at venueID other
// than excludeEventID overlaps [start, end). Windows that only touch do not
// conflict.
func (g *Guard) HasConflict(ctx context.Context, venueID string, start, end time.Time, excludeEventID string) (bool, error) {
	if err := validWindow(start, end); err != nil {
		return false, err
	}
	var conflict bool
	err := g.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetVenue(ctx, venueID); err != nil {
			return notFound(err, "venue", venueID)
		}
		found, err := g.conflictIn(ctx, tx, venueID, start, end, excludeEventID)
		conflict = found != nil
		return err
	})
	return conflict, err
}

// Availability lists the booked windows at the venue intersecting window,
// ignoring excludeEventID.
func (g *Guard) Availability(ctx context.Context, venueID string, window model.TimeWindow, excludeEventID string) (*model.Availability, error) {
	if err := validWindow(window.Start, window.End); err != nil {
		return nil, err
	}
	out := &model.Availability{VenueID: venueID, Window: window, Booked: []model.TimeWindow{}}
	err := g.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetVenue(ctx, venueID); err != nil {
			return notFound(err, "venue", venueID)
		}
		events, err := tx.ListVenueEvents(ctx, venueID, blockingStatuses...)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if ev.ID != excludeEventID && ev.Overlaps(window.Start, window.End) {
				out.Booked = append(out.Booked, model.TimeWindow{Start: ev.StartsAt, End: ev.EndsAt})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Available = len(out.Booked) == 0
	return out, nil
}

// conflictIn returns the first blocking event overlapping [start, end), or nil.
// Callers that go on to publish must hold the venue lock.
func (g *Guard) conflictIn(ctx context.Context, tx repository.Tx, venueID string, start, end time.Time, excludeEventID string) (*model.Event, error) {
	events, err := tx.ListVenueEvents(ctx, venueID, blockingStatuses...)
	if err != nil {
		return nil, err
	}
	for i := range events {
		ev := &events[i]
		if ev.ID != excludeEventID && ev.Overlaps(start, end) {
			return ev, nil
		}
	}
	return nil, nil
}

func validWindow(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return model.Invalid("start and end are required")
	}
	if !end.After(start) {
		return model.Invalid("end must be after start")
	}
	return nil
}
