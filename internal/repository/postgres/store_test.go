package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/clock"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/database"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository/postgres"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/service"
)

// openStore connects to TEST_DATABASE_URL, applies migrations and empties
// every table. Tests are skipped when the variable is unset.
func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("database not available: %v", err)
	}

	require.NoError(t, database.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE tickets, events, venues, users`)
	require.NoError(t, err)
	return postgres.New(pool)
}

func TestRollbackOnError(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	id := uuid.New().String()
	err := store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertVenue(ctx, &model.Venue{
			ID: id, Name: "Hall", Capacity: 10, Status: model.VenueActive, CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetVenue(ctx, id)
		return err
	})
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestNotFoundKinds(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	err := store.WithEvent(ctx, uuid.New().String(), func(context.Context, repository.Tx) error { return nil })
	assert.ErrorIs(t, err, model.ErrNotFound)

	err = store.View(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetTicket(ctx, "not-a-uuid")
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDuplicateEmail(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	insert := func() error {
		return store.Update(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.InsertUser(ctx, &model.User{
				ID: uuid.New().String(), Email: "dup@example.com", Role: model.RoleAttendee, CreatedAt: time.Now().UTC(),
			})
		})
	}
	require.NoError(t, insert())
	require.ErrorIs(t, insert(), model.ErrConflict)
}

// TestConcurrentPurchasesNeverOversell drives the full engine against the
// database: row locks must hold the count at the event's limit.
func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	engine := service.New(store, service.Options{Clock: clock.NewManual(now)})

	admin, err := engine.Users.EnsureAdmin(ctx, "admin@example.com", "Admin")
	require.NoError(t, err)
	venue, err := engine.Venues.Create(ctx, admin.ID, model.CreateVenueRequest{Name: "Hall", Capacity: 100})
	require.NoError(t, err)

	start := now.Add(48 * time.Hour)
	ev, err := engine.Events.Create(ctx, admin.ID, model.CreateEventRequest{
		Name: "Launch", VenueID: venue.ID, StartsAt: start, EndsAt: start.Add(2 * time.Hour),
		BasePrice: 2500, MaxAttendees: 5,
	})
	require.NoError(t, err)
	_, err = engine.Events.Publish(ctx, admin.ID, ev.ID)
	require.NoError(t, err)

	const buyers = 30
	users := make([]*model.User, buyers)
	for i := range users {
		users[i], err = engine.Users.Create(ctx, model.CreateUserRequest{
			Email: fmt.Sprintf("buyer%d@example.com", i), Name: fmt.Sprintf("Buyer %d", i),
		})
		require.NoError(t, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for _, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
				return
			}
			assert.Contains(t, []string{"capacity_exceeded", "transient"}, model.Code(err))
		}()
	}
	wg.Wait()

	got, err := engine.Events.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, sold)
	assert.Equal(t, 5, got.CurrentAttendeeCount)
	assert.Equal(t, model.EventSoldOut, got.Status)
}
