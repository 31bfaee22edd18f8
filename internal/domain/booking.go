package domain

import (
	"fmt"
	"time"
)

type BookingStatus string

const (
	BookingStatusInitiated BookingStatus = "INITIATED"
	BookingStatusBooked    BookingStatus = "BOOKED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

var validNext = map[BookingStatus]map[BookingStatus]bool{
	BookingStatusInitiated: {BookingStatusBooked: true, BookingStatusCancelled: true},
	BookingStatusBooked:    {},
	BookingStatusCancelled: {},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if _, ok := validNext[status]; !ok {
		return "", fmt.Errorf("unknown booking status %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no transition may leave the status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusBooked || s == BookingStatusCancelled
}

func CanTransition(from, to BookingStatus) bool {
	return validNext[from][to]
}

type Booking struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"userId"`
	FlightID  int64         `json:"flightId"`
	NoOfSeats int           `json:"noOfSeats"`
	TotalCost int64         `json:"totalCost"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Expired reports whether the reservation window has elapsed at now.
func (b *Booking) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(b.CreatedAt) > window
}

// BookingWithFlight is a booking joined with a live flight snapshot.
type BookingWithFlight struct {
	Booking
	Flight *Flight `json:"flight,omitempty"`
}
