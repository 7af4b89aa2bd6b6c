package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

func TestConcurrentPurchasesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const seats, buyers = 10, 50
	ev := f.published(t, seats)
	users := make([]*model.User, buyers)
	for i := range users {
		users[i] = f.attendee(t, i)
	}

	errs := make([]error, buyers)
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
		}()
	}
	wg.Wait()

	ok, soldOut := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, model.ErrCapacityExceeded):
			soldOut++
		}
	}
	assert.Equal(t, seats, ok)
	assert.Equal(t, buyers-seats, soldOut)

	got := f.event(t, ev.ID)
	assert.Equal(t, seats, got.CurrentAttendeeCount)
	assert.Equal(t, model.EventSoldOut, got.Status)

	tickets, err := f.engine.Events.ListTickets(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, tickets, seats)
}

func TestPurchase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 5)
	u := f.attendee(t, 1)

	tk, err := f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, model.TicketActive, tk.Status)
	assert.Equal(t, ev.BasePrice, tk.PricePaid)
	assert.Equal(t, model.DefaultTicketType, tk.TicketType)
	assert.False(t, tk.PriceOverride)

	discounted := ev.BasePrice / 2
	tk, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{
		EventID: ev.ID, UserID: u.ID, TicketType: "student", Price: &discounted,
	})
	require.NoError(t, err)
	assert.Equal(t, discounted, tk.PricePaid)
	assert.Equal(t, "student", tk.TicketType)
	assert.Equal(t, 2, f.event(t, ev.ID).CurrentAttendeeCount)
}

func TestPurchasePriceAboveBase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 5)
	u := f.attendee(t, 1)
	premium := ev.BasePrice + 1

	_, err := f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID, Price: &premium})
	require.ErrorIs(t, err, model.ErrValidation)
	require.ErrorIs(t, err, model.ErrPriceExceedsBase)
	assert.Equal(t, "price_exceeds_base", model.Code(err))

	_, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{
		EventID: ev.ID, UserID: u.ID, Price: &premium, Override: true,
	})
	require.ErrorIs(t, err, model.ErrNotAuthorized)
	assert.Equal(t, 0, f.event(t, ev.ID).CurrentAttendeeCount)

	tk, err := f.engine.Issuer.Purchase(ctx, f.admin.ID, model.PurchaseRequest{
		EventID: ev.ID, UserID: u.ID, Price: &premium, Override: true,
	})
	require.NoError(t, err)
	assert.True(t, tk.PriceOverride)
	assert.Equal(t, premium, tk.PricePaid)
}

func TestPurchaseEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.attendee(t, 1)

	start := testNow.Add(24 * time.Hour)
	draft := f.draft(t, start, start.Add(time.Hour), 5)
	_, err := f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: draft.ID, UserID: u.ID})
	require.ErrorIs(t, err, model.ErrEventNotPublished)

	ev := f.published(t, 1)
	f.buy(t, ev.ID, u)
	_, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
	require.ErrorIs(t, err, model.ErrCapacityExceeded)

	_, err = f.engine.Issuer.Purchase(ctx, f.admin.ID, model.PurchaseRequest{EventID: ev.ID, UserID: "nobody"})
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: "missing", UserID: u.ID})
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.engine.Events.Cancel(ctx, f.organizer.ID, ev.ID, false)
	require.NoError(t, err)
	_, err = f.engine.Issuer.Purchase(ctx, u.ID, model.PurchaseRequest{EventID: ev.ID, UserID: u.ID})
	require.ErrorIs(t, err, model.ErrEventNotPublished)
}

func TestPurchaseBulkKeepsOrderAndPartialFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 3)

	ids := []string{f.attendee(t, 1).ID, "ghost", f.attendee(t, 2).ID, f.attendee(t, 3).ID, f.attendee(t, 4).ID}
	outcomes, err := f.engine.Issuer.PurchaseBulk(ctx, f.organizer.ID, ev.ID, ids, "vip")
	require.NoError(t, err)
	require.Len(t, outcomes, len(ids))

	ok, full := 0, 0
	for i, o := range outcomes {
		assert.Equal(t, ids[i], o.UserID)
		switch {
		case o.Err == nil:
			ok++
			assert.Equal(t, "vip", o.Ticket.TicketType)
			assert.Equal(t, ids[i], o.Ticket.UserID)
		case ids[i] == "ghost":
			assert.ErrorIs(t, o.Err, model.ErrNotFound)
		default:
			assert.ErrorIs(t, o.Err, model.ErrCapacityExceeded)
			full++
		}
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 1, full)
	assert.Equal(t, 3, f.event(t, ev.ID).CurrentAttendeeCount)
}

func TestPurchaseBulkLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 3)

	_, err := f.engine.Issuer.PurchaseBulk(ctx, f.organizer.ID, ev.ID, nil, "")
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = f.engine.Issuer.PurchaseBulk(ctx, f.organizer.ID, ev.ID, make([]string, 101), "")
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestPurchaseRequiresBuyerOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 5)
	buyer := f.attendee(t, 1)
	stranger := f.attendee(t, 2)

	_, err := f.engine.Issuer.Purchase(ctx, stranger.ID, model.PurchaseRequest{EventID: ev.ID, UserID: buyer.ID})
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Issuer.Purchase(ctx, "", model.PurchaseRequest{EventID: ev.ID, UserID: buyer.ID})
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Issuer.Purchase(ctx, f.organizer.ID, model.PurchaseRequest{EventID: ev.ID, UserID: buyer.ID})
	require.ErrorIs(t, err, model.ErrNotAuthorized)
	assert.Zero(t, f.event(t, ev.ID).CurrentAttendeeCount)

	tk, err := f.engine.Issuer.Purchase(ctx, f.admin.ID, model.PurchaseRequest{EventID: ev.ID, UserID: buyer.ID})
	require.NoError(t, err)
	assert.Equal(t, buyer.ID, tk.UserID)
	assert.Equal(t, 1, f.event(t, ev.ID).CurrentAttendeeCount)
}

func TestPurchaseBulkRequiresEventManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.published(t, 5)
	fan := f.attendee(t, 1)
	ids := []string{fan.ID, f.attendee(t, 2).ID}

	_, err := f.engine.Issuer.PurchaseBulk(ctx, fan.ID, ev.ID, ids, "")
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	other, err := f.engine.Users.Create(ctx, model.CreateUserRequest{Email: "org2@example.com", Name: "Other"})
	require.NoError(t, err)
	_, err = f.engine.Users.ChangeRole(ctx, f.admin.ID, other.ID, model.RoleOrganizer)
	require.NoError(t, err)
	_, err = f.engine.Issuer.PurchaseBulk(ctx, other.ID, ev.ID, ids, "")
	require.ErrorIs(t, err, model.ErrNotAuthorized)

	_, err = f.engine.Issuer.PurchaseBulk(ctx, f.admin.ID, "missing", ids, "")
	require.ErrorIs(t, err, model.ErrNotFound)
	assert.Zero(t, f.event(t, ev.ID).CurrentAttendeeCount)

	outcomes, err := f.engine.Issuer.PurchaseBulk(ctx, f.admin.ID, ev.ID, ids, "")
	require.NoError(t, err)
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
	assert.Equal(t, 2, f.event(t, ev.ID).CurrentAttendeeCount)
}
