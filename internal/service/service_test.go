package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/clock"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine    *Engine
	store     repository.Store
	clock     *clock.Manual
	admin     *model.User
	organizer *model.User
	venue     *model.Venue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New())
}

func newFixtureWithStore(t *testing.T, store repository.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewManual(testNow)
	engine := New(store, Options{Clock: clk, MaxRetries: 3, BulkConcurrency: 4, MaxBulkSize: 100})

	admin, err := engine.Users.EnsureAdmin(ctx, "admin@example.com", "Admin")
	require.NoError(t, err)

	organizer, err := engine.Users.Create(ctx, model.CreateUserRequest{Email: "org@example.com", Name: "Org"})
	require.NoError(t, err)
	organizer, err = engine.Users.ChangeRole(ctx, admin.ID, organizer.ID, model.RoleOrganizer)
	require.NoError(t, err)

	venue, err := engine.Venues.Create(ctx, organizer.ID, model.CreateVenueRequest{
		Name: "Hall", Address: "1 Main St", Capacity: 500,
	})
	require.NoError(t, err)

	return &fixture{engine: engine, store: store, clock: clk, admin: admin, organizer: organizer, venue: venue}
}

func (f *fixture) draft(t *testing.T, start, end time.Time, seats int) *model.Event {
	t.Helper()
	ev, err := f.engine.Events.Create(context.Background(), f.organizer.ID, model.CreateEventRequest{
		Name:         fmt.Sprintf("Show %s", start.Format(time.Kitchen)),
		VenueID:      f.venue.ID,
		StartsAt:     start,
		EndsAt:       end,
		BasePrice:    5000,
		MaxAttendees: seats,
	})
	require.NoError(t, err)
	return ev
}

func (f *fixture) published(t *testing.T, seats int) *model.Event {
	t.Helper()
	start := testNow.Add(14 * 24 * time.Hour)
	ev := f.draft(t, start, start.Add(3*time.Hour), seats)
	ev, err := f.engine.Events.Publish(context.Background(), f.organizer.ID, ev.ID)
	require.NoError(t, err)
	return ev
}

func (f *fixture) attendee(t *testing.T, n int) *model.User {
	t.Helper()
	u, err := f.engine.Users.Create(context.Background(), model.CreateUserRequest{
		Email: fmt.Sprintf("fan%d@example.com", n),
		Name:  fmt.Sprintf("Fan %d", n),
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) buy(t *testing.T, eventID string, u *model.User) *model.Ticket {
	t.Helper()
	tk, err := f.engine.Issuer.Purchase(context.Background(), u.ID, model.PurchaseRequest{EventID: eventID, UserID: u.ID})
	require.NoError(t, err)
	return tk
}

func (f *fixture) event(t *testing.T, id string) *model.Event {
	t.Helper()
	ev, err := f.engine.Events.Get(context.Background(), id)
	require.NoError(t, err)
	return ev
}

// flakyStore fails the first n event units of work with a concurrent update.
type flakyStore struct {
	repository.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyStore) WithEvent(ctx context.Context, id string, fn func(context.Context, repository.Tx) error) error {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return fmt.Errorf("lock event: %w", model.ErrConcurrentUpdate)
	}
	return s.Store.WithEvent(ctx, id, fn)
}

func TestRetryRecoversFromConcurrentUpdates(t *testing.T) {
	retryBackoff = 0
	store := &flakyStore{Store: memory.New()}
	f := newFixtureWithStore(t, store)
	ev := f.published(t, 5)

	store.calls.Store(0)
	store.failures.Store(2)
	f.buy(t, ev.ID, f.attendee(t, 1))
	require.EqualValues(t, 3, store.calls.Load())
	require.Equal(t, 1, f.event(t, ev.ID).CurrentAttendeeCount)
}

func TestRetryExhaustionIsTransient(t *testing.T) {
	retryBackoff = 0
	store := &flakyStore{Store: memory.New()}
	f := newFixtureWithStore(t, store)
	ev := f.published(t, 5)
	u := f.attendee(t, 1)

	store.calls.Store(0)
	store.failures.Store(10)
	_, err := f.engine.Issuer.Purchase(context.Background(), u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
	require.ErrorIs(t, err, model.ErrTransient)
	require.NotErrorIs(t, err, model.ErrCapacityExceeded)
	require.Equal(t, "transient", model.Code(err))
	require.EqualValues(t, 3, store.calls.Load())

	store.failures.Store(0)
	require.Equal(t, 0, f.event(t, ev.ID).CurrentAttendeeCount)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fan := f.attendee(t, 1)

	_, err := f.engine.Events.Create(ctx, fan.ID, model.CreateEventRequest{
		Name: "Nope", VenueID: f.venue.ID, StartsAt: testNow.Add(time.Hour), EndsAt: testNow.Add(2 * time.Hour), MaxAttendees: 1,
	})
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Users.ChangeRole(ctx, fan.ID, fan.ID, model.RoleAdmin)
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Venues.Create(ctx, "", model.CreateVenueRequest{Name: "X", Capacity: 1})
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	other, err := f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "org2@example.com", Name: "Other"})
	require.NoError(t, err)
	_, err = f.engine.Users.ChangeRole(ctx, f.admin.ID, other.ID, model.RoleOrganizer)
	require.NoError(t, err)

	ev := f.published(t, 10)
	_, err = f.engine.Events.Cancel(ctx, other.ID, ev.ID, false)
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	res, err := f.engine.Events.Cancel(ctx, f.admin.ID, ev.ID, false)
	require.NoError(t, err)
	require.Equal(t, model.EventCancelled, res.Event.Status)
}

func TestUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "  Jane@Example.com ", Name: "Jane"})
	require.NoError(t, err)
	require.Equal(t, "jane@example.com", u.Email)
	require.Equal(t, model.RoleAttendee, u.Role)

	_, err = f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "JANE@example.com", Name: "Jane again"})
	require.ErrorIs(t, err, model.ErrConflict)

	_, err = f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "not-an-email", Name: "X"})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.engine.Users.ChangeRole(ctx, f.admin.ID, u.ID, model.Role("superuser"))
	require.ErrorIs(t, err, model.ErrValidation)

	promoted, err := f.engine.Users.EnsureAdmin(ctx, "jane@example.com", "Jane")
	require.NoError(t, err)
	require.Equal(t, u.ID, promoted.ID)
	require.True(t, promoted.IsAdmin())

	_, err = f.engine.Users.Get(ctx, "missing")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestVenueRetire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 10)

	_, err := f.engine.Venues.Retire(ctx, f.organizer.ID, f.venue.ID)
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Venues.Retire(ctx, f.admin.ID, f.venue.ID)
	require.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = f.engine.Events.Cancel(ctx, f.organizer.ID, ev.ID, false)
	require.NoError(t, err)

	v, err := f.engine.Venues.Retire(ctx, f.admin.ID, f.venue.ID)
	require.NoError(t, err)
	require.Equal(t, model.VenueInactive, v.Status)

	start := testNow.Add(48 * time.Hour)
	_, err = f.engine.Events.Create(ctx, f.organizer.ID, model.CreateEventRequest{
		Name: "Late", VenueID: f.venue.ID, StartsAt: start, EndsAt: start.Add(time.Hour), MaxAttendees: 1,
	})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Venues.Create(ctx, f.organizer.ID, model.CreateVenueRequest{Name: "Arena", Capacity: 100001})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "capacity must be at most 100000")

	v, err := f.engine.Venues.Create(ctx, f.organizer.ID, model.CreateVenueRequest{Name: "Arena", Capacity: 100000})
	require.NoError(t, err)
	assert.Equal(t, 100000, v.Capacity)

	_, err = f.engine.Venues.Create(ctx, f.organizer.ID, model.CreateVenueRequest{Name: "  ", Capacity: 10})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "name is required")

	_, err = f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "jane@example.com", Name: strings.Repeat("j", 201)})
	require.ErrorIs(t, err, model.ErrValidation)

	start := testNow.Add(24 * time.Hour)
	tests := map[string]model.CreateEventRequest{
		"missing name":     {VenueID: f.venue.ID, StartsAt: start, EndsAt: start.Add(time.Hour), MaxAttendees: 1},
		"missing venue":    {Name: "Gig", StartsAt: start, EndsAt: start.Add(time.Hour), MaxAttendees: 1},
		"missing start":    {Name: "Gig", VenueID: f.venue.ID, EndsAt: start.Add(time.Hour), MaxAttendees: 1},
		"end before start": {Name: "Gig", VenueID: f.venue.ID, StartsAt: start, EndsAt: start.Add(-time.Hour), MaxAttendees: 1},
		"no seats":         {Name: "Gig", VenueID: f.venue.ID, StartsAt: start, EndsAt: start.Add(time.Hour)},
		"negative price":   {Name: "Gig", VenueID: f.venue.ID, StartsAt: start, EndsAt: start.Add(time.Hour), MaxAttendees: 1, BasePrice: -1},
	}
	for name, req := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.engine.Events.Create(ctx, f.organizer.ID, req)
			require.ErrorIs(t, err, model.ErrValidation)
		})
	}

	ev := f.published(t, 5)
	u := f.attendee(t, 1)
	negative := int64(-1)
	_, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID, Price: &negative})
	require.ErrorIs(t, err, model.ErrValidation)
	assert.Contains(t, err.Error(), "price must be at least 0")
}

// spyStore hands fn a wrapped tx so tests can count event writes and run
// code while a unit of work holds a venue lock.
type spyStore struct {
	repository.Store
	afterLockVenue func()
	eventWrites    atomic.Int32
}

func (s *spyStore) WithEvent(ctx context.Context, id string, fn func(context.Context, repository.Tx) error) error {
	return s.Store.WithEvent(ctx, id, s.wrap(fn))
}

func (s *spyStore) Update(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return s.Store.Update(ctx, s.wrap(fn))
}

func (s *spyStore) wrap(fn func(context.Context, repository.Tx) error) func(context.Context, repository.Tx) error {
	return func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, &spyTx{Tx: tx, store: s})
	}
}

type spyTx struct {
	repository.Tx
	store *spyStore
}

func (t *spyTx) LockVenue(ctx context.Context, id string) (*model.Venue, error) {
	v, err := t.Tx.LockVenue(ctx, id)
	if hook := t.store.afterLockVenue; err == nil && hook != nil {
		t.store.afterLockVenue = nil
		hook()
	}
	return v, err
}

func (t *spyTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	t.store.eventWrites.Add(1)
	return t.Tx.UpdateEvent(ctx, e)
}
