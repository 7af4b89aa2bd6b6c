// Package service implements the ticket-inventory engine: the capacity
// ledger, the event and ticket lifecycles, ticket issuance and the venue
// scheduling guard. Every state change runs inside a repository unit of
// work; checks happen before the first write so a failed operation leaves
// nothing behind.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/clock"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/metrics"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// Options configures the engine. Zero values fall back to defaults.
type Options struct {
	Clock           clock.Clock
	Logger          *zap.Logger
	Metrics         *metrics.Recorder
	MaxRetries      int
	BulkConcurrency int
	MaxBulkSize     int
}

const (
	defaultMaxRetries      = 3
	defaultBulkConcurrency = 8
	defaultMaxBulkSize     = 500
)

// Engine groups the services that share one store.
type Engine struct {
	Ledger  *Ledger
	Guard   *Guard
	Events  *EventService
	Tickets *TicketService
	Issuer  *Issuer
	Venues  *VenueService
	Users   *UserService
}

// New wires all services over store.
func New(store repository.Store, opts Options) *Engine {
	b := &base{
		store:      store,
		clock:      opts.Clock,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		maxRetries: opts.MaxRetries,
	}
	if b.clock == nil {
		b.clock = clock.NewSystem()
	}
	if b.log == nil {
		b.log = zap.NewNop()
	}
	if b.maxRetries < 1 {
		b.maxRetries = defaultMaxRetries
	}

	bulk := bulkLimits{concurrency: opts.BulkConcurrency, maxSize: opts.MaxBulkSize}
	if bulk.concurrency < 1 {
		bulk.concurrency = defaultBulkConcurrency
	}
	if bulk.maxSize < 1 {
		bulk.maxSize = defaultMaxBulkSize
	}

	ledger := &Ledger{base: b}
	guard := &Guard{base: b}
	return &Engine{
		Ledger:  ledger,
		Guard:   guard,
		Events:  &EventService{base: b, ledger: ledger, guard: guard},
		Tickets: &TicketService{base: b, ledger: ledger, bulk: bulk},
		Issuer:  &Issuer{base: b, ledger: ledger, bulk: bulk},
		Venues:  &VenueService{base: b, guard: guard},
		Users:   &UserService{base: b},
	}
}

type bulkLimits struct {
	concurrency int
	maxSize     int
}

func (l bulkLimits) check(n int) error {
	if n == 0 {
		return model.Invalid("at least one item is required")
	}
	if n > l.maxSize {
		return model.Invalid("at most %d items per request, got %d", l.maxSize, n)
	}
	return nil
}

// base carries what every service needs.
type base struct {
	store      repository.Store
	clock      clock.Clock
	log        *zap.Logger
	metrics    *metrics.Recorder
	maxRetries int
}

// retryBackoff is the pause before attempt n+1 is n*retryBackoff.
var retryBackoff = 5 * time.Millisecond

// retry runs fn until it succeeds, fails with something other than a
// concurrent update, or the attempt budget is spent.
func (b *base) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, model.ErrConcurrentUpdate) {
			return err
		}
		if attempt >= b.maxRetries {
			b.log.Warn("retry budget exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return fmt.Errorf("%s: %w", op, model.ErrTransient)
		}
		b.metrics.Retry(ctx, op)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

// withEvent runs fn while holding the event lock, retrying on concurrent updates.
func (b *base) withEvent(ctx context.Context, op, eventID string, fn func(context.Context, repository.Tx) error) error {
	if strings.TrimSpace(eventID) == "" {
		return model.Invalid("event id is required")
	}
	return b.retry(ctx, op, func() error {
		return b.store.WithEvent(ctx, eventID, fn)
	})
}

func (b *base) update(ctx context.Context, op string, fn func(context.Context, repository.Tx) error) error {
	return b.retry(ctx, op, func() error {
		return b.store.Update(ctx, fn)
	})
}

// eventOfTicket resolves the event a ticket belongs to, so the caller can
// take that event's lock before touching the ticket.
func (b *base) eventOfTicket(ctx context.Context, ticketID string) (string, error) {
	if strings.TrimSpace(ticketID) == "" {
		return "", model.Invalid("ticket id is required")
	}
	var eventID string
	err := b.store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		tk, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return notFound(err, "ticket", ticketID)
		}
		eventID = tk.EventID
		return nil
	})
	return eventID, err
}

// notFound names the missing entity when storage reported a bare
// model.ErrNotFound and passes every other error through untouched.
func notFound(err error, entity, id string) error {
	if err == model.ErrNotFound {
		return model.Errorf(model.ErrNotFound, "%s %s not found", entity, id)
	}
	return err
}

// actor loads the acting user. Anonymous or unknown actors are not authorized.
func actor(ctx context.Context, tx repository.Tx, actorID string) (*model.User, error) {
	if actorID == "" {
		return nil, model.Errorf(model.ErrNotAuthorized, "an acting user is required")
	}
	u, err := tx.GetUser(ctx, actorID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.Errorf(model.ErrNotAuthorized, "unknown acting user %s", actorID)
	}
	return u, err
}

func requireAdmin(ctx context.Context, tx repository.Tx, actorID string) (*model.User, error) {
	u, err := actor(ctx, tx, actorID)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, model.Errorf(model.ErrNotAuthorized, "user %s is not an admin", u.ID)
	}
	return u, nil
}

// requireEventManager admits admins and the organizer who owns ev.
func requireEventManager(ctx context.Context, tx repository.Tx, actorID string, ev *model.Event) (*model.User, error) {
	u, err := actor(ctx, tx, actorID)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() || (u.Role == model.RoleOrganizer && ev.OrganizerID == u.ID) {
		return u, nil
	}
	return nil, model.Errorf(model.ErrNotAuthorized, "user %s does not manage event %s", u.ID, ev.ID)
}

// requireSelfOrAdmin admits the user userID itself and admins.
func requireSelfOrAdmin(ctx context.Context, tx repository.Tx, actorID, userID string) (*model.User, error) {
	u, err := actor(ctx, tx, actorID)
	if err != nil {
		return nil, err
	}
	if u.ID != userID && !u.IsAdmin() {
		return nil, model.Errorf(model.ErrNotAuthorized, "user %s may not act for user %s", u.ID, userID)
	}
	return u, nil
}

// requireTicketHandler admits the ticket holder, admins and the organizer
// who owns the ticket's event.
func requireTicketHandler(ctx context.Context, tx repository.Tx, actorID string, ev *model.Event, tk *model.Ticket) (*model.User, error) {
	u, err := actor(ctx, tx, actorID)
	if err != nil {
		return nil, err
	}
	if u.ID == tk.UserID || u.IsAdmin() || (u.Role == model.RoleOrganizer && ev.OrganizerID == u.ID) {
		return u, nil
	}
	return nil, model.Errorf(model.ErrNotAuthorized, "user %s may not handle ticket %s", u.ID, tk.ID)
}
