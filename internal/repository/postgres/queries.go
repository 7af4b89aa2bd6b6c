package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
)

// txn implements repository.Tx over a pgx transaction.
type txn struct {
	tx pgx.Tx
}

type scanner interface {
	Scan(dest ...any) error
}

const eventColumns = `id, name, description, venue_id, organizer_id, starts_at, ends_at,
	base_price, max_attendees, current_attendee_count, status, created_at, updated_at`

func scanEvent(row scanner) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Name, &e.Description, &e.VenueID, &e.OrganizerID, &e.StartsAt, &e.EndsAt,
		&e.BasePrice, &e.MaxAttendees, &e.CurrentAttendeeCount, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows, op string) ([]model.Event, error) {
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, mapErr(err, op)
		}
		events = append(events, *e)
	}
	return events, mapErr(rows.Err(), op)
}

func (t *txn) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(t.tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get event")
	}
	return e, nil
}

func (t *txn) InsertEvent(ctx context.Context, e *model.Event) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Name, e.Description, e.VenueID, e.OrganizerID, e.StartsAt, e.EndsAt,
		e.BasePrice, e.MaxAttendees, e.CurrentAttendeeCount, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	return mapErr(err, "insert event")
}

func (t *txn) UpdateEvent(ctx context.Context, e *model.Event) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE events
		 SET name = $2, description = $3, starts_at = $4, ends_at = $5, base_price = $6,
		     max_attendees = $7, current_attendee_count = $8, status = $9, updated_at = $10
		 WHERE id = $1`,
		e.ID, e.Name, e.Description, e.StartsAt, e.EndsAt, e.BasePrice,
		e.MaxAttendees, e.CurrentAttendeeCount, e.Status, e.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update event")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *txn) DeleteEvent(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapErr(err, "delete event")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *txn) ListVenueEvents(ctx context.Context, venueID string, statuses ...model.EventStatus) ([]model.Event, error) {
	filter := make([]string, len(statuses))
	for i, s := range statuses {
		filter[i] = string(s)
	}
	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE venue_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		 ORDER BY starts_at, id`,
		venueID, filter,
	)
	if err != nil {
		return nil, mapErr(err, "list venue events")
	}
	return collectEvents(rows, "list venue events")
}

func (t *txn) ListEventsEndedBefore(ctx context.Context, before time.Time) ([]model.Event, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status IN ('published', 'sold_out') AND ends_at <= $1
		 ORDER BY starts_at, id`,
		before,
	)
	if err != nil {
		return nil, mapErr(err, "list ended events")
	}
	return collectEvents(rows, "list ended events")
}

const venueColumns = `id, name, address, capacity, status, created_at`

func scanVenue(row scanner) (*model.Venue, error) {
	var v model.Venue
	if err := row.Scan(&v.ID, &v.Name, &v.Address, &v.Capacity, &v.Status, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

func (t *txn) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	v, err := scanVenue(t.tx.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get venue")
	}
	return v, nil
}

func (t *txn) LockVenue(ctx context.Context, id string) (*model.Venue, error) {
	v, err := scanVenue(t.tx.QueryRow(ctx, `SELECT `+venueColumns+` FROM venues WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err, "lock venue")
	}
	return v, nil
}

func (t *txn) InsertVenue(ctx context.Context, v *model.Venue) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO venues (`+venueColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.Name, v.Address, v.Capacity, v.Status, v.CreatedAt,
	)
	return mapErr(err, "insert venue")
}

func (t *txn) UpdateVenue(ctx context.Context, v *model.Venue) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE venues SET name = $2, address = $3, capacity = $4, status = $5 WHERE id = $1`,
		v.ID, v.Name, v.Address, v.Capacity, v.Status,
	)
	if err != nil {
		return mapErr(err, "update venue")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

const ticketColumns = `id, event_id, user_id, ticket_type, price_paid, price_override,
	status, capacity_released, checked_in_at, created_at, updated_at`

func scanTicket(row scanner) (*model.Ticket, error) {
	var tk model.Ticket
	err := row.Scan(
		&tk.ID, &tk.EventID, &tk.UserID, &tk.TicketType, &tk.PricePaid, &tk.PriceOverride,
		&tk.Status, &tk.CapacityReleased, &tk.CheckedInAt, &tk.CreatedAt, &tk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tk, nil
}

func (t *txn) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	tk, err := scanTicket(t.tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get ticket")
	}
	return tk, nil
}

func (t *txn) InsertTicket(ctx context.Context, tk *model.Ticket) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO tickets (`+ticketColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tk.ID, tk.EventID, tk.UserID, tk.TicketType, tk.PricePaid, tk.PriceOverride,
		tk.Status, tk.CapacityReleased, tk.CheckedInAt, tk.CreatedAt, tk.UpdatedAt,
	)
	return mapErr(err, "insert ticket")
}

func (t *txn) UpdateTicket(ctx context.Context, tk *model.Ticket) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE tickets
		 SET status = $2, capacity_released = $3, checked_in_at = $4, updated_at = $5
		 WHERE id = $1`,
		tk.ID, tk.Status, tk.CapacityReleased, tk.CheckedInAt, tk.UpdatedAt,
	)
	if err != nil {
		return mapErr(err, "update ticket")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (t *txn) ListEventTickets(ctx context.Context, eventID string) ([]model.Ticket, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 ORDER BY created_at, id`,
		eventID,
	)
	if err != nil {
		return nil, mapErr(err, "list tickets")
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		tk, err := scanTicket(rows)
		if err != nil {
			return nil, mapErr(err, "scan ticket")
		}
		tickets = append(tickets, *tk)
	}
	return tickets, mapErr(rows.Err(), "list tickets")
}

const userColumns = `id, email, name, role, created_at`

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *txn) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get user")
	}
	return u, nil
}

func (t *txn) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, mapErr(err, "get user by email")
	}
	return u, nil
}

func (t *txn) InsertUser(ctx context.Context, u *model.User) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Email, u.Name, u.Role, u.CreatedAt,
	)
	return mapErr(err, "insert user")
}

func (t *txn) UpdateUser(ctx context.Context, u *model.User) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET email = $2, name = $3, role = $4 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Role,
	)
	if err != nil {
		return mapErr(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
