// Package postgres implements repository.Store on PostgreSQL using pgx
// directly (no ORM).
//
// Units of work are transactions. WithEvent takes a row-level exclusive lock
// on the event with SELECT … FOR UPDATE, so concurrent purchases for one
// event serialize on that row while purchases for other events proceed.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/ticket-inventory/internal/model"
	"github.com/Shivanand-hulikatti/ticket-inventory/internal/repository"
)

// Store handles persistence for all engine records.
type Store struct {
	pool *pgxpool.Pool
}

var _ repository.Store = (*Store)(nil)

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithEvent(ctx context.Context, eventID string, fn func(context.Context, repository.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&id)
		if err != nil {
			return mapErr(err, "lock event")
		}
		return fn(ctx, &txn{tx: tx})
	})
}

func (s *Store) WithVenue(ctx context.Context, venueID string, fn func(context.Context, repository.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx, `SELECT id FROM venues WHERE id = $1 FOR UPDATE`, venueID).Scan(&id)
		if err != nil {
			return mapErr(err, "lock venue")
		}
		return fn(ctx, &txn{tx: tx})
	})
}

func (s *Store) Update(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txn{tx: tx})
	})
}

func (s *Store) View(ctx context.Context, fn func(context.Context, repository.Tx) error) error {
	return s.inTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txn{tx: tx})
	})
}

// inTx runs fn in a transaction that is committed only if fn succeeds.
func (s *Store) inTx(ctx context.Context, opts pgx.TxOptions, fn func(context.Context, pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, opts)
	if err != nil {
		return mapErr(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapErr(err, "commit transaction")
	}
	return nil
}

// mapErr translates driver errors into the engine's error kinds.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return model.Errorf(model.ErrConflict, "%s: %s", op, pgErr.Detail)
		case "23503": // foreign_key_violation
			return model.Invalid("%s: referenced record does not exist", op)
		case "22P02": // invalid_text_representation, e.g. malformed uuid
			return model.ErrNotFound
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return fmt.Errorf("%s: %w", op, model.ErrConcurrentUpdate)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
