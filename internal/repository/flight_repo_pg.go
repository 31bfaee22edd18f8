package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FlightRepository interface {
	List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error)
	GetByID(ctx context.Context, id int64) (*domain.Flight, error)
	// UpdateSeats atomically moves seats out of (decrease) or back into the
	// available pool of a flight.
	UpdateSeats(ctx context.Context, flightID int64, seats int, decrease bool) (*SeatUpdate, error)
}

// SeatUpdate is the flight after a seat update. Overflow counts released
// seats that did not fit under total_seats and were dropped.
type SeatUpdate struct {
	Flight   *domain.Flight
	Overflow int
}

const flightColumns = `id, flight_number, departure_airport_id, arrival_airport_id, departure_time, arrival_time, price, total_seats, available_seats, created_at, updated_at`

// sortColumns whitelists the fields a search may order by.
var sortColumns = map[string]string{
	"price":          "price",
	"departureTime":  "departure_time",
	"arrivalTime":    "arrival_time",
	"availableSeats": "available_seats",
}

func SortColumn(field string) (string, bool) {
	col, ok := sortColumns[field]
	return col, ok
}

type PGFlightRepository struct {
	db *pgxpool.Pool
}

func NewFlightRepository(db *pgxpool.Pool) FlightRepository {
	return &PGFlightRepository{db: db}
}

func (r *PGFlightRepository) List(ctx context.Context, filter domain.FlightFilter) ([]domain.Flight, error) {
	query, args := buildFlightQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Internal(err, "cannot fetch data of all the flights")
	}
	defer rows.Close()

	flights := make([]domain.Flight, 0)
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, err
		}
		flights = append(flights, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, "cannot fetch data of all the flights")
	}
	return flights, nil
}

func (r *PGFlightRepository) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	row := r.db.QueryRow(ctx, `SELECT `+flightColumns+` FROM flights WHERE id=$1`, id)
	return scanFlight(row)
}

func (r *PGFlightRepository) UpdateSeats(ctx context.Context, flightID int64, seats int, decrease bool) (*SeatUpdate, error) {
	if !decrease {
		var overflow int
		row := r.db.QueryRow(ctx, `WITH prev AS (
				SELECT available_seats AS prev_available FROM flights WHERE id=$1 FOR UPDATE
			)
			UPDATE flights SET available_seats = LEAST(prev.prev_available + $2, total_seats), updated_at = now()
			FROM prev WHERE flights.id=$1
			RETURNING `+flightColumns+`, GREATEST(prev.prev_available + $2 - total_seats, 0)`, flightID, seats)
		f, err := scanFlight(row, &overflow)
		if err != nil {
			return nil, err
		}
		return &SeatUpdate{Flight: f, Overflow: overflow}, nil
	}

	row := r.db.QueryRow(ctx, `UPDATE flights SET available_seats = available_seats - $2, updated_at = now()
		WHERE id=$1 AND available_seats >= $2 RETURNING `+flightColumns, flightID, seats)
	f, err := scanFlight(row)
	if err == nil {
		return &SeatUpdate{Flight: f}, nil
	}
	if !errors.Is(err, domain.ErrFlightNotFound) {
		return nil, err
	}

	// The guarded decrement matched nothing: either the flight is unknown or it is full.
	if _, err := r.GetByID(ctx, flightID); err != nil {
		return nil, err
	}
	return nil, domain.ErrNotEnoughSeats
}

func buildFlightQuery(filter domain.FlightFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if filter.DepartureAirport != "" {
		add("departure_airport_id = $%d", filter.DepartureAirport)
	}
	if filter.ArrivalAirport != "" {
		add("arrival_airport_id = $%d", filter.ArrivalAirport)
	}
	if filter.MinPrice > 0 {
		add("price >= $%d", filter.MinPrice)
	}
	if filter.MaxPrice > 0 {
		add("price <= $%d", filter.MaxPrice)
	}
	if filter.Travellers > 0 {
		add("available_seats >= $%d", filter.Travellers)
	}
	if !filter.TripDate.IsZero() {
		add("departure_time >= $%d", filter.TripDate)
		add("departure_time < $%d", filter.TripDate.AddDate(0, 0, 1))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + flightColumns + ` FROM flights`)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	order := make([]string, 0, len(filter.Sort)+1)
	for _, s := range filter.Sort {
		col, ok := SortColumn(s.Column)
		if !ok {
			continue
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		order = append(order, col+" "+dir)
	}
	if len(order) == 0 {
		order = append(order, "departure_time ASC")
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))

	return sb.String(), args
}

// scanFlight reads flightColumns followed by any extra columns into extra.
func scanFlight(row pgx.Row, extra ...any) (*domain.Flight, error) {
	var f domain.Flight
	dest := append([]any{&f.ID, &f.FlightNumber, &f.DepartureAirport, &f.ArrivalAirport, &f.DepartureTime, &f.ArrivalTime,
		&f.Price, &f.TotalSeats, &f.AvailableSeats, &f.CreatedAt, &f.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFlightNotFound
		}
		return nil, domain.Internal(err, "cannot read flight")
	}
	return &f, nil
}

var _ FlightRepository = (*PGFlightRepository)(nil)
