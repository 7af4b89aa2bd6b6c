// Package memory is a single-process implementation of repository.Store.
//
// Event and venue locks are keyed mutexes that honour context cancellation.
// Writes are staged on the unit of work and applied under the store mutex on
// commit, so a failed unit of work leaves no trace.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

var errReadOnly = errors.New("write attempted in read-only unit of work")

// Store keeps all records in maps guarded by mu.
type Store struct {
	mu      sync.RWMutex
	events  map[string]model.Event
	venues  map[string]model.Venue
	tickets map[string]model.Ticket
	users   map[string]model.User

	eventLocks keyedMutex
	venueLocks keyedMutex
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		events:  make(map[string]model.Event),
		venues:  make(map[string]model.Venue),
		tickets: make(map[string]model.Ticket),
		users:   make(map[string]model.User),
	}
}

func (s *Store) WithEvent(ctx context.Context, eventID string, fn func(context.Context, repository.Tx) error) error {
	unlock, err := s.eventLocks.lock(ctx, eventID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	_, ok := s.events[eventID]
	s.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}
	return s.run(ctx, newTx(s, false), fn)
}

func (s *Store) WithVenue(ctx context.Context, venueID string, fn func(context.Context, repository.Tx) error) error {
	unlock, err := s.venueLocks.lock(ctx, venueID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.RLock()
	_, ok := s.venues[venueID]
	s.mu.RUnlock()
	if !ok {
		return model.ErrNotFound
	}
	t := newTx(s, false)
	t.heldVenues[venueID] = true
	return s.run(ctx, t, fn)
}

func (s *Store) Update(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return s.run(ctx, newTx(s, false), fn)
}

func (s *Store) View(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return s.run(ctx, newTx(s, true), fn)
}

func (s *Store) run(ctx context.Context, t *tx, fn func(context.Context, repository.Tx) error) error {
	defer t.releaseLocks()
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// tx stages writes. A nil map value marks a deleted record.
type tx struct {
	s        *Store
	readOnly bool

	events  map[string]*model.Event
	venues  map[string]*model.Venue
	tickets map[string]*model.Ticket
	users   map[string]*model.User

	heldVenues map[string]bool
	unlocks    []func()
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		s:          s,
		readOnly:   readOnly,
		events:     make(map[string]*model.Event),
		venues:     make(map[string]*model.Venue),
		tickets:    make(map[string]*model.Ticket),
		users:      make(map[string]*model.User),
		heldVenues: make(map[string]bool),
	}
}

func (t *tx) releaseLocks() {
	for i := len(t.unlocks) - 1; i >= 0; i-- {
		t.unlocks[i]()
	}
	t.unlocks = nil
}

func (t *tx) commit() error {
	if len(t.events)+len(t.venues)+len(t.tickets)+len(t.users) == 0 {
		return nil
	}

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	for id, u := range t.users {
		if u == nil {
			continue
		}
		for otherID, other := range t.s.users {
			if otherID != id && other.Email == u.Email {
				return model.Errorf(model.ErrConflict, "email %s is already registered", u.Email)
			}
		}
	}

	applyStaged(t.s.events, t.events)
	applyStaged(t.s.venues, t.venues)
	applyStaged(t.s.tickets, t.tickets)
	applyStaged(t.s.users, t.users)
	return nil
}

func applyStaged[T any](dst map[string]T, staged map[string]*T) {
	for id, v := range staged {
		if v == nil {
			delete(dst, id)
			continue
		}
		dst[id] = *v
	}
}

// lookup resolves id against the staged writes first, then committed state.
func lookup[T any](t *tx, staged map[string]*T, committed map[string]T, id string) (*T, bool) {
	if v, ok := staged[id]; ok {
		if v == nil {
			return nil, false
		}
		cp := *v
		return &cp, true
	}
	t.s.mu.RLock()
	v, ok := committed[id]
	t.s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &v, true
}

// merged returns a snapshot of committed state overlaid with staged writes.
func merged[T any](t *tx, staged map[string]*T, committed map[string]T) map[string]T {
	t.s.mu.RLock()
	out := make(map[string]T, len(committed)+len(staged))
	for id, v := range committed {
		out[id] = v
	}
	t.s.mu.RUnlock()
	for id, v := range staged {
		if v == nil {
			delete(out, id)
			continue
		}
		out[id] = *v
	}
	return out
}

func (t *tx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) GetEvent(_ context.Context, id string) (*model.Event, error) {
	e, ok := lookup(t, t.events, t.s.events, id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return e, nil
}

func (t *tx) InsertEvent(_ context.Context, e *model.Event) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.events, t.s.events, e.ID); ok {
		return model.Errorf(model.ErrConflict, "event %s already exists", e.ID)
	}
	cp := *e
	t.events[e.ID] = &cp
	return nil
}

func (t *tx) UpdateEvent(_ context.Context, e *model.Event) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.events, t.s.events, e.ID); !ok {
		return model.ErrNotFound
	}
	cp := *e
	t.events[e.ID] = &cp
	return nil
}

func (t *tx) DeleteEvent(_ context.Context, id string) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.events, t.s.events, id); !ok {
		return model.ErrNotFound
	}
	t.events[id] = nil
	return nil
}

func (t *tx) ListVenueEvents(_ context.Context, venueID string, statuses ...model.EventStatus) ([]model.Event, error) {
	var out []model.Event
	for _, e := range merged(t, t.events, t.s.events) {
		if e.VenueID != venueID {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, e.Status) {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

func (t *tx) ListEventsEndedBefore(_ context.Context, before time.Time) ([]model.Event, error) {
	var out []model.Event
	for _, e := range merged(t, t.events, t.s.events) {
		if e.Status.OnSale() && !e.EndsAt.After(before) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

func (t *tx) GetVenue(_ context.Context, id string) (*model.Venue, error) {
	v, ok := lookup(t, t.venues, t.s.venues, id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return v, nil
}

func (t *tx) LockVenue(ctx context.Context, id string) (*model.Venue, error) {
	if !t.heldVenues[id] {
		unlock, err := t.s.venueLocks.lock(ctx, id)
		if err != nil {
			return nil, err
		}
		t.unlocks = append(t.unlocks, unlock)
		t.heldVenues[id] = true
	}
	return t.GetVenue(ctx, id)
}

func (t *tx) InsertVenue(_ context.Context, v *model.Venue) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.venues, t.s.venues, v.ID); ok {
		return model.Errorf(model.ErrConflict, "venue %s already exists", v.ID)
	}
	cp := *v
	t.venues[v.ID] = &cp
	return nil
}

func (t *tx) UpdateVenue(_ context.Context, v *model.Venue) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.venues, t.s.venues, v.ID); !ok {
		return model.ErrNotFound
	}
	cp := *v
	t.venues[v.ID] = &cp
	return nil
}

func (t *tx) GetTicket(_ context.Context, id string) (*model.Ticket, error) {
	tk, ok := lookup(t, t.tickets, t.s.tickets, id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return tk, nil
}

func (t *tx) InsertTicket(_ context.Context, tk *model.Ticket) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.tickets, t.s.tickets, tk.ID); ok {
		return model.Errorf(model.ErrConflict, "ticket %s already exists", tk.ID)
	}
	cp := *tk
	t.tickets[tk.ID] = &cp
	return nil
}

func (t *tx) UpdateTicket(_ context.Context, tk *model.Ticket) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.tickets, t.s.tickets, tk.ID); !ok {
		return model.ErrNotFound
	}
	cp := *tk
	t.tickets[tk.ID] = &cp
	return nil
}

func (t *tx) ListEventTickets(_ context.Context, eventID string) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, tk := range merged(t, t.tickets, t.s.tickets) {
		if tk.EventID == eventID {
			out = append(out, tk)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) GetUser(_ context.Context, id string) (*model.User, error) {
	u, ok := lookup(t, t.users, t.s.users, id)
	if !ok {
		return nil, model.ErrNotFound
	}
	return u, nil
}

func (t *tx) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range merged(t, t.users, t.s.users) {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, model.ErrNotFound
}

func (t *tx) InsertUser(ctx context.Context, u *model.User) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.users, t.s.users, u.ID); ok {
		return model.Errorf(model.ErrConflict, "user %s already exists", u.ID)
	}
	if _, err := t.GetUserByEmail(ctx, u.Email); err == nil {
		return model.Errorf(model.ErrConflict, "email %s is already registered", u.Email)
	}
	cp := *u
	t.users[u.ID] = &cp
	return nil
}

func (t *tx) UpdateUser(_ context.Context, u *model.User) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := lookup(t, t.users, t.s.users, u.ID); !ok {
		return model.ErrNotFound
	}
	cp := *u
	t.users[u.ID] = &cp
	return nil
}

func hasStatus(statuses []model.EventStatus, s model.EventStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func sortEvents(events []model.Event) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartsAt.Equal(events[j].StartsAt) {
			return events[i].StartsAt.Before(events[j].StartsAt)
		}
		return events[i].ID < events[j].ID
	})
}

// keyedMutex hands out one lock per key. Entries are reference counted and
// dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func (k *keyedMutex) lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			k.put(key, l)
		}, nil
	case <-ctx.Done():
		k.put(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyedMutex) put(key string, l *keyLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
