// Package repository defines the persistence contract of the ticketing
// engine. Implementations live in the postgres and memory subpackages.
//
// Every mutation happens inside a unit of work. A unit of work either
// commits all of its writes or none of them, and WithEvent holds an exclusive
// lock on the event for its whole duration, which is what serializes
// capacity reservations and cancellation cascades for that event.
package repository

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

// Store opens units of work.
type Store interface {
	// WithEvent locks the event row and runs fn. Returns model.ErrNotFound
	// when the event does not exist. Writes made through tx commit when fn
	// returns nil and are discarded otherwise.
	WithEvent(ctx context.Context, eventID string, fn func(ctx context.Context, tx Tx) error) error

	// WithVenue locks the venue row and runs fn, like WithEvent.
	WithVenue(ctx context.Context, venueID string, fn func(ctx context.Context, tx Tx) error) error

	// Update runs fn in a unit of work without taking any entity lock.
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// View runs fn for reads only. Writes through tx are not permitted.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of reads and writes available inside a unit of work. Getters
// return model.ErrNotFound for missing rows and always return copies the
// caller may mutate freely.
type Tx interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	InsertEvent(ctx context.Context, e *model.Event) error
	UpdateEvent(ctx context.Context, e *model.Event) error
	DeleteEvent(ctx context.Context, id string) error
	// ListVenueEvents returns events at the venue whose status is one of
	// statuses, or all events at the venue when statuses is empty.
	ListVenueEvents(ctx context.Context, venueID string, statuses ...model.EventStatus) ([]model.Event, error)
	// ListEventsEndedBefore returns on-sale events whose end time is at or
	// before t.
	ListEventsEndedBefore(ctx context.Context, t time.Time) ([]model.Event, error)

	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	// LockVenue returns the venue and holds its lock until the unit of work
	// ends. Lock order is always event before venue.
	LockVenue(ctx context.Context, id string) (*model.Venue, error)
	InsertVenue(ctx context.Context, v *model.Venue) error
	UpdateVenue(ctx context.Context, v *model.Venue) error

	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	InsertTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, t *model.Ticket) error
	ListEventTickets(ctx context.Context, eventID string) ([]model.Ticket, error)

	GetUser(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// InsertUser returns model.ErrConflict when the email is taken.
	InsertUser(ctx context.Context, u *model.User) error
	UpdateUser(ctx context.Context, u *model.User) error
}
