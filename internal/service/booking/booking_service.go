package booking

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/Domenick1991/flightbooking/internal/repository"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultReservationWindow = 5 * time.Minute
	defaultNotifyTimeout     = 2 * time.Second
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	MakePayment(ctx context.Context, input PaymentInput) (*domain.Booking, error)
	CancelBooking(ctx context.Context, bookingID int64) (*domain.Booking, error)
	ListUserBookings(ctx context.Context, userID int64) ([]domain.BookingWithFlight, error)
	SearchFlights(ctx context.Context, query url.Values) ([]domain.Flight, error)
}

// Inventory is the remote owner of flight seat counters.
type Inventory interface {
	GetFlight(ctx context.Context, flightID int64) (*domain.Flight, error)
	ListFlights(ctx context.Context, query url.Values) ([]domain.Flight, error)
	ReserveSeats(ctx context.Context, flightID int64, seats int) error
	ReleaseSeats(ctx context.Context, flightID int64, seats int) error
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

type CreateBookingInput struct {
	FlightID  int64 `json:"flightId"`
	NoOfSeats int   `json:"noOfSeats"`
	UserID    int64 `json:"userId"`
}

func (in CreateBookingInput) validate() error {
	var problems []string
	if in.FlightID <= 0 {
		problems = append(problems, "The Flight ID was not found in the incoming request")
	}
	if in.NoOfSeats <= 0 {
		problems = append(problems, "Number of Seats must be a positive number")
	}
	if in.UserID <= 0 {
		problems = append(problems, "The User ID was not found in the incoming request")
	}
	if len(problems) > 0 {
		return domain.Validation(problems...)
	}
	return nil
}

type PaymentInput struct {
	BookingID int64 `json:"bookingId"`
	UserID    int64 `json:"userId"`
	TotalCost int64 `json:"totalCost"`
}

type BookingService struct {
	bookings      repository.BookingRepository
	inventory     Inventory
	notifier      Notifier
	log           logrus.FieldLogger
	window        time.Duration
	recipient     string
	subject       string
	notifyTimeout time.Duration
	now           func() time.Time
}

type BookingServiceOption func(*BookingService)

func WithNotifier(n Notifier, recipient, subject string) BookingServiceOption {
	return func(s *BookingService) {
		s.notifier = n
		s.recipient = recipient
		if subject != "" {
			s.subject = subject
		}
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	inventory Inventory,
	window time.Duration,
	log logrus.FieldLogger,
	opts ...BookingServiceOption,
) *BookingService {
	if window <= 0 {
		window = DefaultReservationWindow
	}
	service := &BookingService{
		bookings:      bookings,
		inventory:     inventory,
		log:           log,
		window:        window,
		subject:       "Flight booked",
		notifyTimeout: defaultNotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking persists an INITIATED booking and reserves its seats remotely.
// The row is committed only after the reservation succeeded.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var (
		created  *domain.Booking
		reserved bool
	)
	err := s.bookings.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		flight, err := s.inventory.GetFlight(ctx, input.FlightID)
		if err != nil {
			return err
		}
		if input.NoOfSeats > flight.AvailableSeats {
			return domain.NewError(domain.KindCapacity, nil,
				fmt.Sprintf("Sorry! Not enough seats available: requested %d, available %d", input.NoOfSeats, flight.AvailableSeats))
		}

		booking := &domain.Booking{
			UserID:    input.UserID,
			FlightID:  input.FlightID,
			NoOfSeats: input.NoOfSeats,
			TotalCost: int64(input.NoOfSeats) * flight.Price,
			Status:    domain.BookingStatusInitiated,
		}
		if err := tx.Create(ctx, booking); err != nil {
			return err
		}

		if err := s.inventory.ReserveSeats(ctx, input.FlightID, input.NoOfSeats); err != nil {
			return err
		}
		reserved = true
		created = booking
		return nil
	})
	if err != nil {
		if reserved {
			// Only the commit can fail after the reservation went through.
			s.undoReservation(ctx, input.FlightID, input.NoOfSeats, err)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": created.ID,
		"flight_id":  created.FlightID,
		"seats":      created.NoOfSeats,
		"total_cost": created.TotalCost,
	}).Info("booking initiated")
	return created, nil
}

// MakePayment finalizes an INITIATED booking. A booking past its reservation
// window is cancelled on the spot and the payment fails as expired.
func (s *BookingService) MakePayment(ctx context.Context, input PaymentInput) (*domain.Booking, error) {
	if input.BookingID <= 0 {
		return nil, domain.Validation("The Booking ID was not found in the incoming request")
	}

	var (
		paid     *domain.Booking
		expired  *domain.Booking
		released bool
	)
	err := s.bookings.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		current, err := tx.GetForUpdate(ctx, input.BookingID)
		if err != nil {
			return err
		}

		switch current.Status {
		case domain.BookingStatusBooked:
			return domain.ErrDuplicatePayment
		case domain.BookingStatusCancelled:
			return domain.ErrExpiredSession
		}

		if current.Expired(s.now(), s.window) {
			expired = current
			_, err := s.releaseAndCancel(ctx, tx, current, &released)
			return err
		}

		var problems []string
		if current.TotalCost != input.TotalCost {
			problems = append(problems, "The amount of the payment doesn't match")
		}
		if current.UserID != input.UserID {
			problems = append(problems, "The user corresponding to the booking doesn't match")
		}
		if len(problems) > 0 {
			return domain.Validation(problems...)
		}

		paid, err = tx.UpdateStatus(ctx, current.ID, domain.BookingStatusBooked)
		return err
	})

	if expired != nil {
		log := s.log.WithField("booking_id", expired.ID)
		if err != nil {
			if released {
				s.undoRelease(ctx, expired, err)
			}
			log.WithError(err).Warn("expired booking could not be cancelled, leaving it to the sweeper")
		} else {
			log.Info("booking expired at payment time, seats released")
		}
		return nil, domain.ErrExpiredSession
	}
	if err != nil {
		return nil, err
	}

	s.log.WithField("booking_id", paid.ID).Info("booking paid")
	s.notifyBooked(ctx, paid)
	return paid, nil
}

// CancelBooking releases the booking's seats and marks it CANCELLED. Cancelling
// an already cancelled booking is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, bookingID int64) (*domain.Booking, error) {
	var (
		result   *domain.Booking
		target   *domain.Booking
		released bool
	)
	err := s.bookings.WithinTx(ctx, func(ctx context.Context, tx repository.BookingTx) error {
		current, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}

		switch current.Status {
		case domain.BookingStatusCancelled:
			result = current
			return nil
		case domain.BookingStatusBooked:
			return domain.ErrBookingFinalized
		}

		target = current
		result, err = s.releaseAndCancel(ctx, tx, current, &released)
		return err
	})
	if err != nil {
		if released {
			s.undoRelease(ctx, target, err)
		}
		return nil, err
	}

	if target != nil {
		s.log.WithFields(logrus.Fields{
			"booking_id": result.ID,
			"flight_id":  result.FlightID,
			"seats":      result.NoOfSeats,
		}).Info("booking cancelled")
	}
	return result, nil
}

// ListUserBookings joins every booking of the user with a flight snapshot read
// from the inventory at call time.
func (s *BookingService) ListUserBookings(ctx context.Context, userID int64) ([]domain.BookingWithFlight, error) {
	if userID <= 0 {
		return nil, domain.Validation("The User ID was not found in the incoming request")
	}

	bookings, err := s.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshots := make(map[int64]*domain.Flight)
	out := make([]domain.BookingWithFlight, 0, len(bookings))
	for _, b := range bookings {
		flight, seen := snapshots[b.FlightID]
		if !seen {
			flight, err = s.inventory.GetFlight(ctx, b.FlightID)
			if err != nil && !errors.Is(err, domain.ErrFlightNotFound) {
				return nil, err
			}
			snapshots[b.FlightID] = flight
		}
		out = append(out, domain.BookingWithFlight{Booking: b, Flight: flight})
	}
	return out, nil
}

func (s *BookingService) SearchFlights(ctx context.Context, query url.Values) ([]domain.Flight, error) {
	return s.inventory.ListFlights(ctx, query)
}

func (s *BookingService) releaseAndCancel(ctx context.Context, tx repository.BookingTx, b *domain.Booking, released *bool) (*domain.Booking, error) {
	if err := s.inventory.ReleaseSeats(ctx, b.FlightID, b.NoOfSeats); err != nil {
		return nil, err
	}
	*released = true
	return tx.UpdateStatus(ctx, b.ID, domain.BookingStatusCancelled)
}

// undoReservation compensates a reservation whose booking row was not saved.
func (s *BookingService) undoReservation(ctx context.Context, flightID int64, seats int, cause error) {
	log := s.log.WithFields(logrus.Fields{"flight_id": flightID, "seats": seats, "cause": cause.Error()})
	if err := s.inventory.ReleaseSeats(context.WithoutCancel(ctx), flightID, seats); err != nil {
		log.WithError(err).Error("reservation_leaked: seats reserved without a booking")
		return
	}
	log.Warn("booking not saved, reservation released")
}

// undoRelease re-reserves seats released for a booking whose cancellation was
// rolled back, so the next cancel attempt does not release them twice.
func (s *BookingService) undoRelease(ctx context.Context, b *domain.Booking, cause error) {
	log := s.log.WithFields(logrus.Fields{"booking_id": b.ID, "flight_id": b.FlightID, "seats": b.NoOfSeats, "cause": cause.Error()})
	if err := s.inventory.ReserveSeats(context.WithoutCancel(ctx), b.FlightID, b.NoOfSeats); err != nil {
		log.WithError(err).Error("release_leaked: seats released for a booking that is still held")
		return
	}
	log.Warn("cancellation not saved, seats reserved again")
}

func (s *BookingService) notifyBooked(ctx context.Context, b *domain.Booking) {
	if s.notifier == nil {
		return
	}
	n := domain.Notification{
		ID:        uuid.NewString(),
		BookingID: b.ID,
		Recipient: s.recipient,
		Subject:   s.subject,
		Text:      fmt.Sprintf("Booking successfully done for the booking %d", b.ID),
		CreatedAt: s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.log.WithError(err).WithField("booking_id", b.ID).Warn("booking notification not sent")
	}
}

var _ BookingUseCase = (*BookingService)(nil)
