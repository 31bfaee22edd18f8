package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrCommit marks a failure of the final COMMIT of a scoped transaction. Work done
// inside the callback against other resources may already be visible there.
var ErrCommit = errors.New("commit booking transaction")

// BookingTx is the view of the store inside a scoped transaction. Rows read with
// GetForUpdate stay locked until the transaction ends.
type BookingTx interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error)
}

type BookingRepository interface {
	// WithinTx runs fn in a transaction. A non-nil error from fn rolls it back;
	// otherwise it is committed.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error
	GetByID(ctx context.Context, id int64) (*domain.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error)
	// ListStale returns INITIATED bookings created strictly before createdBefore.
	ListStale(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error)
}

const bookingColumns = `id, user_id, flight_id, no_of_seats, total_cost, status, created_at, updated_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) BookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Internal(err, "could not start booking transaction")
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgBookingTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(fmt.Errorf("%w: %v", ErrCommit, err), "could not save booking")
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id int64) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, domain.Internal(err, "could not list bookings")
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) ListStale(ctx context.Context, createdBefore time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE status=$1 AND created_at < $2 ORDER BY created_at`,
		domain.BookingStatusInitiated, createdBefore)
	if err != nil {
		return nil, domain.Internal(err, "could not query stale bookings")
	}
	return collectBookings(rows)
}

type pgBookingTx struct {
	tx pgx.Tx
}

func (t *pgBookingTx) Create(ctx context.Context, booking *domain.Booking) error {
	if err := t.tx.QueryRow(ctx, `INSERT INTO bookings (user_id, flight_id, no_of_seats, total_cost, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`, booking.UserID, booking.FlightID, booking.NoOfSeats, booking.TotalCost, booking.Status).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt); err != nil {
		return domain.Internal(err, "could not create booking")
	}
	return nil
}

func (t *pgBookingTx) GetForUpdate(ctx context.Context, id int64) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1 FOR UPDATE`, id)
	return scanBooking(row)
}

func (t *pgBookingTx) UpdateStatus(ctx context.Context, id int64, status domain.BookingStatus) (*domain.Booking, error) {
	row := t.tx.QueryRow(ctx, `UPDATE bookings SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+bookingColumns, status, id)
	return scanBooking(row)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(&b.ID, &b.UserID, &b.FlightID, &b.NoOfSeats, &b.TotalCost, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrBookingNotFound
		}
		return nil, domain.Internal(err, "could not read booking")
	}
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "could not read bookings")
	}
	return bookings, nil
}

var _ BookingRepository = (*PGBookingRepository)(nil)
var _ BookingTx = (*pgBookingTx)(nil)
